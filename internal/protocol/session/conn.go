package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/dorepo/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed    = errors.New("session: connection closed")
	ErrRunActive = errors.New("session: read loop already running")
)

// readChunk bounds one socket read. Frames larger than a chunk are carried
// across reads by the assembler.
const readChunk = 32 << 10

// Handler receives one complete frame payload. Calls are sequential.
type Handler func(payload []byte)

// Conn is a framed peer link. One goroutine runs the read loop while any
// number of goroutines may Send.
type Conn struct {
	raw net.Conn
	cfg Config

	wmu       sync.Mutex
	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	lostOnce  sync.Once
	onLost    func(error)
	done      chan struct{}
}

func NewConn(raw net.Conn, cfg Config) *Conn {
	return &Conn{
		raw:  raw,
		cfg:  cfg.WithDefaults(),
		done: make(chan struct{}),
	}
}

// OnLost registers the connection-lost callback. It must be set before Run
// and fires at most once.
func (c *Conn) OnLost(fn func(error)) {
	c.onLost = fn
}

func (c *Conn) RemoteAddr() string {
	if addr := c.raw.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Done is closed once the read loop has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Run reads frames until the stream fails, the connection is closed, or ctx
// is cancelled. A frame is handed to h only once it has fully arrived.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	defer close(c.done)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	var asm frame.Assembler
	buf := make([]byte, readChunk)
	for {
		if c.cfg.ReadTimeout > 0 {
			_ = c.raw.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		n, err := c.raw.Read(buf)
		for _, payload := range asm.Feed(buf[:n]) {
			if len(payload) == 0 {
				log.Debug().Msgf("session.Run empty frame remote=%s", c.RemoteAddr())
				continue
			}
			h(payload)
		}
		if err != nil {
			if short := asm.Err(); short != nil && errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %d bytes buffered: %w", short, asm.Buffered(), io.ErrUnexpectedEOF)
			}
			err = c.classify(ctx, err)
			c.lost(err)
			return err
		}
	}
}

func (c *Conn) classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrClosed, ctx.Err())
	case c.closed.Load():
		return ErrClosed
	case errors.Is(err, io.EOF):
		return fmt.Errorf("session: peer closed: %w", err)
	default:
		return fmt.Errorf("session: read: %w", err)
	}
}

func (c *Conn) lost(err error) {
	c.lostOnce.Do(func() {
		log.Info().Msgf("session.Conn lost remote=%s err=%v", c.RemoteAddr(), err)
		if c.onLost != nil {
			c.onLost(err)
		}
	})
}

// Send frames payload and writes it in one call. Concurrent Sends never
// interleave. Empty payloads are dropped.
func (c *Conn) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if len(payload) > frame.MaxPayload {
		return frame.ErrPayloadTooLarge
	}
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(c.raw, payload); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// Close is idempotent and unblocks a pending read.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.raw.Close()
	})
	return err
}
