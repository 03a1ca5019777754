package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/session"
)

type fileConfig struct {
	Name           string `toml:"name"`
	Role           string `toml:"role"`
	Address        string `toml:"address"`
	Heartbeat      string `toml:"heartbeat"`
	RequestTimeout string `toml:"request_timeout"`
	StrictFree     bool   `toml:"strict_free"`
	WireCharset    string `toml:"wire_charset"`

	Hello struct {
		Version string `toml:"version"`
		Hash    uint32 `toml:"hash"`
	} `toml:"hello"`

	Interests []struct {
		Handle  uint16   `toml:"handle"`
		Context uint32   `toml:"context"`
		Parent  uint32   `toml:"parent"`
		Zones   []uint32 `toml:"zones"`
	} `toml:"interest"`

	Authority struct {
		Channel     uint64 `toml:"channel"`
		StateServer uint64 `toml:"state_server"`
		Database    uint64 `toml:"database"`
		ConName     string `toml:"con_name"`
		ObjectMin   uint32 `toml:"object_min"`
		ObjectMax   uint32 `toml:"object_max"`
	} `toml:"authority"`

	Channels struct {
		Min uint32 `toml:"min"`
		Max uint32 `toml:"max"`
	} `toml:"channels"`

	Session struct {
		ConnectTimeout     string `toml:"connect_timeout"`
		HandshakeTimeout   string `toml:"handshake_timeout"`
		WriteTimeout       string `toml:"write_timeout"`
		ReadTimeout        string `toml:"read_timeout"`
		MaxConnectAttempts int    `toml:"max_connect_attempts"`
		SecurityMode       string `toml:"security_mode"`
		TLS                struct {
			Enabled            bool   `toml:"enabled"`
			Mutual             bool   `toml:"mutual"`
			CertFile           string `toml:"cert_file"`
			KeyFile            string `toml:"key_file"`
			CAFile             string `toml:"ca_file"`
			ServerName         string `toml:"server_name"`
			InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
		} `toml:"tls"`
	} `toml:"session"`

	Admin struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
		Token       string   `toml:"token"`
	} `toml:"admin"`

	Tracing struct {
		Endpoint string `toml:"endpoint"`
		Service  string `toml:"service"`
	} `toml:"tracing"`

	Classes []ClassDecl `toml:"class"`
}

// envOverrides are applied after the file. Pointer fields keep unset
// variables distinct from zero values.
type envOverrides struct {
	Name           *string        `env:"DOREPO_NAME"`
	Role           *string        `env:"DOREPO_ROLE"`
	Address        *string        `env:"DOREPO_ADDRESS"`
	Channel        *uint64        `env:"DOREPO_CHANNEL"`
	StateServer    *uint64        `env:"DOREPO_STATE_SERVER"`
	Database       *uint64        `env:"DOREPO_DATABASE"`
	RequestTimeout *time.Duration `env:"DOREPO_REQUEST_TIMEOUT"`
	AdminAddr      *string        `env:"DOREPO_ADMIN_ADDR"`
	AdminToken     *string        `env:"DOREPO_ADMIN_TOKEN"`
	TraceEndpoint  *string        `env:"DOREPO_TRACING_ENDPOINT"`
	SecurityMode   *string        `env:"DOREPO_SECURITY_MODE"`
	WireCharset    *string        `env:"DOREPO_WIRE_CHARSET"`
}

// Load reads path over DefaultConfig, applies DOREPO_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("role") {
		cfg.Role = strings.ToLower(strings.TrimSpace(raw.Role))
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("strict_free") {
		cfg.StrictFree = raw.StrictFree
	}
	if meta.IsDefined("wire_charset") {
		if cfg.WireCharset, err = datagram.ParseCharset(raw.WireCharset); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if err := parseDuration(meta.IsDefined("heartbeat"), raw.Heartbeat, "heartbeat", &cfg.Heartbeat); err != nil {
		return Config{}, err
	}
	if err := parseDuration(meta.IsDefined("request_timeout"), raw.RequestTimeout, "request_timeout", &cfg.RequestTimeout); err != nil {
		return Config{}, err
	}

	if meta.IsDefined("hello", "version") {
		cfg.Hello.Version = strings.TrimSpace(raw.Hello.Version)
	}
	if meta.IsDefined("hello", "hash") {
		cfg.Hello.Hash = raw.Hello.Hash
	}

	for _, in := range raw.Interests {
		cfg.Interests = append(cfg.Interests, InterestConfig{
			Handle:  in.Handle,
			Context: in.Context,
			Parent:  in.Parent,
			Zones:   in.Zones,
		})
	}

	if meta.IsDefined("channels", "min") {
		cfg.Channels.Min = raw.Channels.Min
	}
	if meta.IsDefined("channels", "max") {
		cfg.Channels.Max = raw.Channels.Max
	}

	auth := raw.Authority
	if meta.IsDefined("authority", "channel") {
		cfg.Channel = auth.Channel
	}
	if meta.IsDefined("authority", "state_server") {
		cfg.StateServer = auth.StateServer
	}
	if meta.IsDefined("authority", "database") {
		cfg.Database = auth.Database
	}
	if meta.IsDefined("authority", "con_name") {
		cfg.ConName = strings.TrimSpace(auth.ConName)
	}
	if meta.IsDefined("authority", "object_min") {
		cfg.Objects.Min = auth.ObjectMin
	}
	if meta.IsDefined("authority", "object_max") {
		cfg.Objects.Max = auth.ObjectMax
	}

	if err := applySession(meta, raw, &cfg.Session); err != nil {
		return Config{}, err
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("tracing", "endpoint") {
		cfg.Tracing.Endpoint = strings.TrimSpace(raw.Tracing.Endpoint)
	}
	if meta.IsDefined("tracing", "service") {
		cfg.Tracing.Service = strings.TrimSpace(raw.Tracing.Service)
	}

	cfg.Classes = raw.Classes
	return cfg, nil
}

func applySession(meta toml.MetaData, raw fileConfig, out *session.Config) error {
	s := raw.Session
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"connect_timeout", s.ConnectTimeout, &out.ConnectTimeout},
		{"handshake_timeout", s.HandshakeTimeout, &out.HandshakeTimeout},
		{"write_timeout", s.WriteTimeout, &out.WriteTimeout},
		{"read_timeout", s.ReadTimeout, &out.ReadTimeout},
	}
	for _, d := range durations {
		if err := parseDuration(meta.IsDefined("session", d.key), d.val, "session."+d.key, d.dst); err != nil {
			return err
		}
	}
	if meta.IsDefined("session", "max_connect_attempts") {
		out.MaxConnectAttempts = s.MaxConnectAttempts
	}
	if meta.IsDefined("session", "security_mode") {
		out.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(s.SecurityMode))
	}
	if meta.IsDefined("session", "tls") {
		out.TLS = session.TLSConfig{
			Enabled:            s.TLS.Enabled,
			Mutual:             s.TLS.Mutual,
			CertFile:           strings.TrimSpace(s.TLS.CertFile),
			KeyFile:            strings.TrimSpace(s.TLS.KeyFile),
			CAFile:             strings.TrimSpace(s.TLS.CAFile),
			ServerName:         strings.TrimSpace(s.TLS.ServerName),
			InsecureSkipVerify: s.TLS.InsecureSkipVerify,
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	if ov.Name != nil {
		cfg.Name = strings.TrimSpace(*ov.Name)
	}
	if ov.Role != nil {
		cfg.Role = strings.ToLower(strings.TrimSpace(*ov.Role))
	}
	if ov.Address != nil {
		cfg.Address = strings.TrimSpace(*ov.Address)
	}
	if ov.Channel != nil {
		cfg.Channel = *ov.Channel
	}
	if ov.StateServer != nil {
		cfg.StateServer = *ov.StateServer
	}
	if ov.Database != nil {
		cfg.Database = *ov.Database
	}
	if ov.RequestTimeout != nil {
		cfg.RequestTimeout = *ov.RequestTimeout
	}
	if ov.AdminAddr != nil {
		cfg.Admin.Addr = strings.TrimSpace(*ov.AdminAddr)
	}
	if ov.AdminToken != nil {
		cfg.Admin.Token = strings.TrimSpace(*ov.AdminToken)
	}
	if ov.TraceEndpoint != nil {
		cfg.Tracing.Endpoint = strings.TrimSpace(*ov.TraceEndpoint)
	}
	if ov.SecurityMode != nil {
		cfg.Session.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(*ov.SecurityMode))
	}
	if ov.WireCharset != nil {
		charset, err := datagram.ParseCharset(*ov.WireCharset)
		if err != nil {
			return fmt.Errorf("config env: %w", err)
		}
		cfg.WireCharset = charset
	}
	return nil
}

func parseDuration(defined bool, raw, key string, dst *time.Duration) error {
	if !defined {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
