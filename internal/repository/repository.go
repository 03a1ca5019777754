// Package repository drives the distributed object protocol over one peer
// connection, in either the client role or the authority role.
//
// Inbound frames are handled one at a time on the read goroutine with the
// repository lock held. Code running on any other goroutine must go through
// Do to touch objects, the object table, or issue outbound messages that
// mutate local state.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/dotable"
	"github.com/danmuck/dorepo/internal/idalloc"
	"github.com/danmuck/dorepo/internal/observability"
	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/frame"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/danmuck/dorepo/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected   = errors.New("repository: not connected")
	ErrFieldMissing   = errors.New("repository: required field has no value")
	ErrUnknownField   = errors.New("repository: unknown field")
	ErrUnknownClass   = errors.New("repository: unknown class")
	ErrPoolExhausted  = errors.New("repository: id pool exhausted")
	ErrRequestExpired = errors.New("repository: request expired")
	ErrConnectionLost = errors.New("repository: connection lost")
)

// Events are host notifications. They run with the repository lock held,
// except OnConnectFailed which runs on the caller of Connect.
type Events struct {
	OnConnect       func()
	OnConnectFailed func(code int, message string)
	OnConnectLost   func(err error)
	OnHello         func()
	OnEject         func(code uint16, reason string)
	OnInterestDone  func(context uint32, handle uint16)
	OnGenerate      func(o *distobj.Object)
	OnDelete        func(o *distobj.Object)
}

// Options configure either role.
type Options struct {
	Schema     schema.FieldSchema
	Factory    distobj.Factory
	Session    session.Config
	ChannelMin uint32
	ChannelMax uint32
	StrictFree bool
	// Charset maps wire strings. Raw leaves them byte-for-byte.
	Charset datagram.Charset
	// RequestTimeout expires pending queries. Zero keeps them until answered
	// or the connection is lost.
	RequestTimeout time.Duration
	Events         Events
}

type handlerFunc func(it *datagram.Iterator) error

// Repository is the state shared by both roles: schema, factory, object
// table, channel pool and the peer connection.
type Repository struct {
	role     distobj.Role
	schema   schema.FieldSchema
	factory  distobj.Factory
	table    *dotable.Table
	channels *idalloc.Allocator
	pending  *PendingTable
	events   Events
	cfg      session.Config
	timeout  time.Duration
	charset  datagram.Charset

	mu       sync.Mutex
	conn     atomic.Pointer[session.Conn]
	sender   uint64
	handlers map[protocol.MsgType]handlerFunc
	pools    []*idalloc.Allocator

	onAttach  func() error
	onRelease func(id uint32)
}

func newRepository(role distobj.Role, opts Options) (*Repository, error) {
	if opts.Schema == nil {
		return nil, errors.New("repository: schema is required")
	}
	if opts.Factory == nil {
		opts.Factory = distobj.NewRegistry()
	}
	if opts.ChannelMin == 0 && opts.ChannelMax == 0 {
		opts.ChannelMin, opts.ChannelMax = 1000000, 1999999
	}
	allocOpts := []idalloc.Option{idalloc.WithName("channels")}
	if opts.StrictFree {
		allocOpts = append(allocOpts, idalloc.WithStrictFree())
	}
	channels, err := idalloc.New(opts.ChannelMin, opts.ChannelMax, allocOpts...)
	if err != nil {
		return nil, fmt.Errorf("repository: channel pool: %w", err)
	}
	return &Repository{
		role:     role,
		schema:   opts.Schema,
		factory:  opts.Factory,
		table:    dotable.New(),
		channels: channels,
		pending:  NewPendingTable(),
		events:   opts.Events,
		cfg:      opts.Session.WithDefaults(),
		timeout:  opts.RequestTimeout,
		charset:  opts.Charset,
		handlers: make(map[protocol.MsgType]handlerFunc),
		pools:    []*idalloc.Allocator{channels},
	}, nil
}

func (r *Repository) Role() distobj.Role { return r.role }

func (r *Repository) Schema() schema.FieldSchema { return r.schema }

func (r *Repository) Table() *dotable.Table { return r.table }

func (r *Repository) Pending() *PendingTable { return r.pending }

// Do runs fn with the repository lock held. It must not be called from a
// hook, handler, or event callback.
func (r *Repository) Do(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// Object returns the primary-table object for id.
func (r *Repository) Object(id uint32) (*distobj.Object, bool) {
	obj, ok := r.table.Get(id)
	if !ok {
		return nil, false
	}
	o, ok := obj.(*distobj.Object)
	return o, ok
}

func (r *Repository) OwnerView(id uint32) (*distobj.Object, bool) {
	obj, ok := r.table.GetOwnerView(id)
	if !ok {
		return nil, false
	}
	o, ok := obj.(*distobj.Object)
	return o, ok
}

// Connect dials addr and attaches the connection. A failed dial is reported
// through OnConnectFailed and returned.
func (r *Repository) Connect(ctx context.Context, addr string) error {
	conn, err := session.Dial(ctx, addr, r.cfg)
	if err != nil {
		var ce *session.ConnectError
		if errors.As(err, &ce) && r.events.OnConnectFailed != nil {
			r.events.OnConnectFailed(ce.Code, ce.Message)
		}
		return err
	}
	return r.Attach(conn)
}

// Attach adopts an established connection and runs role setup.
func (r *Repository) Attach(conn *session.Conn) error {
	if !r.conn.CompareAndSwap(nil, conn) {
		return errors.New("repository: already attached")
	}
	conn.OnLost(r.handleLost)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onAttach != nil {
		if err := r.onAttach(); err != nil {
			return err
		}
	}
	if r.events.OnConnect != nil {
		r.events.OnConnect()
	}
	return nil
}

func (r *Repository) Connected() bool {
	conn := r.conn.Load()
	if conn == nil {
		return false
	}
	select {
	case <-conn.Done():
		return false
	default:
		return true
	}
}

// Run blocks in the read loop until the connection ends.
func (r *Repository) Run(ctx context.Context) error {
	conn := r.conn.Load()
	if conn == nil {
		return ErrNotConnected
	}
	if r.timeout > 0 {
		go r.expireLoop(ctx, conn.Done())
	}
	return conn.Run(ctx, r.HandleFrame)
}

func (r *Repository) Close() error {
	conn := r.conn.Load()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (r *Repository) expireLoop(ctx context.Context, done <-chan struct{}) {
	interval := r.timeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case now := <-ticker.C:
			r.Do(func() { r.ExpirePending(now) })
		}
	}
}

// ExpirePending fails overdue queries with ErrRequestExpired. Callers off
// the dispatch goroutine must hold the lock via Do.
func (r *Repository) ExpirePending(now time.Time) int {
	expired := r.pending.Expire(now)
	for _, req := range expired {
		log.Warn().Msgf("repository.ExpirePending ctx=%d response=%s", req.Context, req.Response)
		if req.fail != nil {
			req.fail(fmt.Errorf("%w: ctx=%d", ErrRequestExpired, req.Context))
		}
	}
	return len(expired)
}

func (r *Repository) handleLost(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.pending.Drain() {
		if req.fail != nil {
			req.fail(fmt.Errorf("%w: %w", ErrConnectionLost, err))
		}
	}
	if r.events.OnConnectLost != nil {
		r.events.OnConnectLost(err)
	}
}

// HandleFrame dispatches one complete payload. Malformed and unknown frames
// are logged and dropped; the connection stays up.
func (r *Repository) HandleFrame(payload []byte) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	role := r.role.String()
	it := datagram.NewIterator(payload)
	it.SetCharset(r.charset)
	if r.role == distobj.RoleAuthority {
		addr, err := frame.ReadAddress(it)
		if err != nil {
			log.Warn().Msgf("repository.HandleFrame bad address prefix bytes=%d err=%v", len(payload), err)
			observability.RecordFrameDropped(role, "underflow")
			return
		}
		r.sender = addr.Sender
	}
	tag, err := it.ReadUint16()
	if err != nil {
		log.Warn().Msgf("repository.HandleFrame missing message type bytes=%d", len(payload))
		observability.RecordFrameDropped(role, "underflow")
		return
	}
	msgType := protocol.MsgType(tag)
	h, ok := r.handlers[msgType]
	if !ok {
		log.Warn().Msgf("repository.HandleFrame unknown message type=%d role=%s", tag, role)
		observability.RecordFrameDropped(role, "unknown_type")
		return
	}

	_, span := observability.StartDispatchSpan(context.Background(), role, msgType.String(), len(payload))
	err = h(it)
	observability.EndSpan(span, err)
	if err != nil {
		reason := "handler_error"
		if errors.Is(err, datagram.ErrBufferUnderflow) {
			reason = "underflow"
		}
		log.Warn().Msgf("repository.HandleFrame dropped type=%s reason=%s err=%v", msgType, reason, err)
		observability.RecordFrameDropped(role, reason)
	}
	observability.RecordFrameReceived(role, msgType.String(), time.Since(start))
	r.recordGauges()
}

// MsgSender is the sender channel of the frame being dispatched. Only the
// authority role sees sender channels.
func (r *Repository) MsgSender() uint64 { return r.sender }

func (r *Repository) recordGauges() {
	role := r.role.String()
	observability.SetObjectCount(role, "primary", r.table.Len())
	observability.SetObjectCount(role, "owner", r.table.OwnerLen())
	for _, pool := range r.pools {
		observability.SetAllocatorUsage(pool.Name(), pool.FractionUsed())
	}
}

// newDatagram returns an empty outbound datagram using the wire charset.
func (r *Repository) newDatagram() *datagram.Datagram {
	dg := datagram.New()
	dg.SetCharset(r.charset)
	return dg
}

func (r *Repository) newTyped(msgType protocol.MsgType) *datagram.Datagram {
	dg := r.newDatagram()
	dg.WriteUint16(uint16(msgType))
	return dg
}

func (r *Repository) send(msgType protocol.MsgType, dg *datagram.Datagram) error {
	conn := r.conn.Load()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Send(dg.Bytes()); err != nil {
		return err
	}
	observability.RecordFrameSent(r.role.String(), msgType.String())
	return nil
}

// AllocateChannel takes a routing channel from the channel pool.
func (r *Repository) AllocateChannel() (uint64, error) {
	ch := r.channels.Allocate()
	if ch == idalloc.Exhausted {
		return 0, fmt.Errorf("%w: channels", ErrPoolExhausted)
	}
	return uint64(ch), nil
}

func (r *Repository) DeallocateChannel(ch uint64) error {
	if ch > uint64(idalloc.Exhausted) {
		return fmt.Errorf("%w: channel=%d", idalloc.ErrOutOfRange, ch)
	}
	return r.channels.Free(uint32(ch))
}

// Objects lists primary-table objects for inspection. Callers off the
// dispatch goroutine must hold the lock via Do.
func (r *Repository) Objects() []observability.ObjectView {
	snap := r.table.Snapshot()
	out := make([]observability.ObjectView, 0, len(snap))
	for _, obj := range snap {
		o, ok := obj.(*distobj.Object)
		if !ok {
			continue
		}
		out = append(out, observability.ObjectView{
			ID:     o.ID,
			Class:  o.ClassName(),
			Parent: o.ParentID,
			Zone:   o.ZoneID,
			State:  o.State().String(),
		})
	}
	return out
}

func (r *Repository) Allocators() []idalloc.Stats {
	out := make([]idalloc.Stats, 0, len(r.pools))
	for _, pool := range r.pools {
		out = append(out, pool.Stats())
	}
	return out
}

// Inspect adapts the repository for the admin server.
func (r *Repository) Inspect() observability.Inspector {
	return inspector{r}
}

type inspector struct{ r *Repository }

func (i inspector) Role() string { return i.r.role.String() }

func (i inspector) Connected() bool { return i.r.Connected() }

func (i inspector) Objects() []observability.ObjectView {
	var out []observability.ObjectView
	i.r.Do(func() { out = i.r.Objects() })
	return out
}

func (i inspector) Allocators() []idalloc.Stats { return i.r.Allocators() }

func (i inspector) PendingRequests() int { return i.r.pending.Len() }
