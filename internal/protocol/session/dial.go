package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// ConnectError reports a failed dial as an errno-style code plus a message.
// Code is -1 when no system error number is available.
type ConnectError struct {
	Code    int
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: connect failed code=%d: %s", e.Code, e.Message)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func newConnectError(err error) *ConnectError {
	code := -1
	var errno syscall.Errno
	if errors.As(err, &errno) {
		code = int(errno)
	}
	return &ConnectError{Code: code, Message: err.Error(), Err: err}
}

// Dial connects to addr, retrying with backoff up to MaxConnectAttempts.
// Every failure is returned as *ConnectError.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	tlsCfg, err := cfg.ClientTLSConfig()
	if err != nil {
		return nil, &ConnectError{Code: -1, Message: err.Error(), Err: err}
	}
	if tlsCfg != nil && strings.TrimSpace(tlsCfg.ServerName) == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			tlsCfg.ServerName = host
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxConnectAttempts; attempt++ {
		raw, err := dialOnce(ctx, addr, cfg, tlsCfg)
		if err == nil {
			log.Info().Msgf("session.Dial connected addr=%s attempt=%d", addr, attempt)
			return NewConn(raw, cfg), nil
		}
		lastErr = err
		log.Warn().Msgf("session.Dial attempt=%d addr=%q err=%v", attempt, addr, err)
		if attempt == cfg.MaxConnectAttempts {
			break
		}
		if err := sleepContext(ctx, NextBackoffDelay(cfg.Backoff, attempt, rng)); err != nil {
			lastErr = err
			break
		}
	}
	return nil, newConnectError(lastErr)
}

func dialOnce(ctx context.Context, addr string, cfg Config, tlsCfg *tls.Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return raw, nil
	}
	conn := tls.Client(raw, tlsCfg)
	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}
