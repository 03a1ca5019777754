package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
)

// PendingRequest tracks one outbound query awaiting its response message.
type PendingRequest struct {
	Context    uint32
	Response   protocol.MsgType
	DoID       uint32
	QueuedAt   time.Time
	DeadlineAt time.Time

	resolve func(it *datagram.Iterator) error
	fail    func(err error)
}

// PendingTable correlates responses to requests by u32 context.
type PendingTable struct {
	mu    sync.Mutex
	next  uint32
	items map[uint32]PendingRequest
}

func NewPendingTable() *PendingTable {
	return &PendingTable{items: make(map[uint32]PendingRequest)}
}

// Add stores req under a fresh non-zero context and returns it.
func (p *PendingTable) Add(req PendingRequest) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		p.next++
		if p.next == 0 {
			continue
		}
		if _, used := p.items[p.next]; !used {
			break
		}
	}
	req.Context = p.next
	p.items[req.Context] = req
	return req.Context
}

// Take removes and returns the request for ctx if it expects resp.
func (p *PendingTable) Take(ctx uint32, resp protocol.MsgType) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.items[ctx]
	if !ok || req.Response != resp {
		return PendingRequest{}, false
	}
	delete(p.items, ctx)
	return req, true
}

func (p *PendingTable) Remove(ctx uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, ctx)
}

// Expire removes every request whose deadline is before now.
func (p *PendingTable) Expire(now time.Time) []PendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PendingRequest
	for ctx, req := range p.items {
		if !req.DeadlineAt.IsZero() && req.DeadlineAt.Before(now) {
			out = append(out, req)
			delete(p.items, ctx)
		}
	}
	sortPending(out)
	return out
}

// Drain removes and returns everything.
func (p *PendingTable) Drain() []PendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingRequest, 0, len(p.items))
	for _, req := range p.items {
		out = append(out, req)
	}
	p.items = make(map[uint32]PendingRequest)
	sortPending(out)
	return out
}

func (p *PendingTable) List() []PendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingRequest, 0, len(p.items))
	for _, req := range p.items {
		out = append(out, req)
	}
	sortPending(out)
	return out
}

func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func sortPending(list []PendingRequest) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].Context < list[j].Context
	})
}
