package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/session"
	"github.com/danmuck/dorepo/internal/repository"
)

const (
	RoleClient    = "client"
	RoleAuthority = "authority"
)

var ErrInvalid = errors.New("config: invalid")

type Range struct {
	Min uint32
	Max uint32
}

type HelloConfig struct {
	Version string
	Hash    uint32
}

type InterestConfig struct {
	Handle  uint16
	Context uint32
	Parent  uint32
	Zones   []uint32
}

type AdminConfig struct {
	// Addr is the admin HTTP listen address. Empty disables the admin server.
	Addr        string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on inspection routes.
	Token string
}

type TracingConfig struct {
	// Endpoint is an OTLP/HTTP collector URL. Empty disables export.
	Endpoint string
	Service  string
}

// Config is the resolved process configuration for either role.
type Config struct {
	Name    string
	Role    string
	Address string

	Hello     HelloConfig
	Heartbeat time.Duration
	Interests []InterestConfig

	Channels    Range
	Objects     Range
	Channel     uint64
	StateServer uint64
	Database    uint64
	ConName     string

	RequestTimeout time.Duration
	StrictFree     bool
	// WireCharset maps string fields on the wire.
	WireCharset datagram.Charset

	Session session.Config
	Admin   AdminConfig
	Tracing TracingConfig

	Classes []ClassDecl
}

func DefaultConfig() Config {
	return Config{
		Name:           "dorepo",
		Role:           RoleClient,
		Address:        "127.0.0.1:7198",
		Hello:          HelloConfig{Version: "dev"},
		Heartbeat:      10 * time.Second,
		Channels:       Range{Min: 1000000, Max: 1999999},
		Objects:        Range{Min: 100000000, Max: 100999999},
		StateServer:    0,
		RequestTimeout: 30 * time.Second,
		Session:        session.DefaultConfig(),
		Admin:          AdminConfig{CorsOrigins: []string{"http://localhost:3000"}},
		Tracing:        TracingConfig{Service: "dorepo"},
	}
}

func (c Config) IsAuthority() bool {
	return c.Role == RoleAuthority
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if cfg.Role != RoleClient && cfg.Role != RoleAuthority {
		return fmt.Errorf("%w: role must be %q or %q, got %q", ErrInvalid, RoleClient, RoleAuthority, cfg.Role)
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("%w: missing address", ErrInvalid)
	}
	if cfg.Channels.Min == 0 || cfg.Channels.Min > cfg.Channels.Max {
		return fmt.Errorf("%w: channel range %d-%d", ErrInvalid, cfg.Channels.Min, cfg.Channels.Max)
	}
	if cfg.IsAuthority() {
		if cfg.Objects.Min == 0 || cfg.Objects.Min > cfg.Objects.Max {
			return fmt.Errorf("%w: object range %d-%d", ErrInvalid, cfg.Objects.Min, cfg.Objects.Max)
		}
	} else {
		if strings.TrimSpace(cfg.Hello.Version) == "" {
			return fmt.Errorf("%w: client requires hello.version", ErrInvalid)
		}
		for i, in := range cfg.Interests {
			if len(in.Zones) == 0 {
				return fmt.Errorf("%w: interest[%d] has no zones", ErrInvalid, i)
			}
		}
	}
	if cfg.Heartbeat < 0 || cfg.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := BuildSchema(cfg.Classes); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// RepositoryOptions maps the shared settings onto repository options. The
// caller fills Schema, Factory and Events.
func (c Config) RepositoryOptions() repository.Options {
	return repository.Options{
		Session:        c.Session,
		ChannelMin:     c.Channels.Min,
		ChannelMax:     c.Channels.Max,
		StrictFree:     c.StrictFree,
		Charset:        c.WireCharset,
		RequestTimeout: c.RequestTimeout,
	}
}

func (c Config) ServerOptions() repository.ServerOptions {
	return repository.ServerOptions{
		Options:     c.RepositoryOptions(),
		ObjectMin:   c.Objects.Min,
		ObjectMax:   c.Objects.Max,
		Channel:     c.Channel,
		StateServer: c.StateServer,
		Database:    c.Database,
		ConName:     c.ConName,
	}
}
