// Package idalloc hands out unique uint32 ids from a fixed inclusive range.
//
// The same pool type backs routing channel allocation and, on the authority
// role, object id allocation. Freed ids are appended to the tail of the free
// list, so a released id is reused only after every id freed before it.
package idalloc

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

// Exhausted is returned by Allocate when no ids remain.
const Exhausted uint32 = math.MaxUint32

const (
	slotEnd       uint32 = math.MaxUint32
	slotAllocated uint32 = math.MaxUint32 - 1

	// MaxSize bounds the slot table; the two top values are slot markers.
	MaxSize = math.MaxUint32 - 2
)

var (
	ErrInvalidRange = errors.New("idalloc: invalid range")
	ErrOutOfRange   = errors.New("idalloc: id out of range")
	ErrNotAllocated = errors.New("idalloc: id not allocated")
)

type Option func(*Allocator)

// WithStrictFree rejects Free for ids that are not currently allocated.
// Without it a double free corrupts the free list silently.
func WithStrictFree() Option {
	return func(a *Allocator) { a.strict = true }
}

// WithName labels log lines and metrics.
func WithName(name string) Option {
	return func(a *Allocator) { a.name = name }
}

type Allocator struct {
	mu       sync.Mutex
	name     string
	min, max uint32
	table    []uint32
	head     uint32
	tail     uint32
	free     uint32
	strict   bool
}

func New(min, max uint32, opts ...Option) (*Allocator, error) {
	if min > max {
		return nil, fmt.Errorf("%w: min=%d > max=%d", ErrInvalidRange, min, max)
	}
	size := uint64(max) - uint64(min) + 1
	if size > MaxSize {
		return nil, fmt.Errorf("%w: size=%d exceeds %d", ErrInvalidRange, size, uint64(MaxSize))
	}
	a := &Allocator{
		name:  "ids",
		min:   min,
		max:   max,
		table: make([]uint32, size),
		head:  0,
		tail:  uint32(size - 1),
		free:  uint32(size),
	}
	for i := range a.table {
		a.table[i] = uint32(i + 1)
	}
	a.table[size-1] = slotEnd
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Allocate pops the head of the free list. Callers must compare the result
// against Exhausted.
func (a *Allocator) Allocate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.head == slotEnd {
		log.Warn().Msgf("idalloc.Allocate exhausted name=%s range=[%d,%d]", a.name, a.min, a.max)
		return Exhausted
	}
	index := a.head
	a.head = a.table[index]
	a.table[index] = slotAllocated
	a.free--
	if a.head == slotEnd {
		a.tail = slotEnd
	}
	return index + a.min
}

// Free returns id to the tail of the free list.
func (a *Allocator) Free(id uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < a.min || id > a.max {
		return fmt.Errorf("%w: id=%d range=[%d,%d]", ErrOutOfRange, id, a.min, a.max)
	}
	index := id - a.min
	if a.table[index] != slotAllocated {
		if a.strict {
			return fmt.Errorf("%w: id=%d", ErrNotAllocated, id)
		}
		log.Debug().Msgf("idalloc.Free unchecked free name=%s id=%d", a.name, id)
	}
	if a.head == slotEnd {
		a.head = index
	} else {
		a.table[a.tail] = index
	}
	a.table[index] = slotEnd
	a.tail = index
	a.free++
	return nil
}

func (a *Allocator) IsAllocated(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < a.min || id > a.max {
		return false
	}
	return a.table[id-a.min] == slotAllocated
}

// FractionUsed reports allocated/capacity in [0, 1].
func (a *Allocator) FractionUsed() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := len(a.table)
	return float64(size-int(a.free)) / float64(size)
}

func (a *Allocator) Capacity() int { return len(a.table) }

func (a *Allocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.free)
}

func (a *Allocator) Name() string { return a.name }

func (a *Allocator) Range() (min, max uint32) { return a.min, a.max }

type Stats struct {
	Name         string  `json:"name"`
	Min          uint32  `json:"min"`
	Max          uint32  `json:"max"`
	Capacity     int     `json:"capacity"`
	Available    int     `json:"available"`
	FractionUsed float64 `json:"fraction_used"`
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := len(a.table)
	return Stats{
		Name:         a.name,
		Min:          a.min,
		Max:          a.max,
		Capacity:     size,
		Available:    int(a.free),
		FractionUsed: float64(size-int(a.free)) / float64(size),
	}
}
