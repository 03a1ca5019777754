package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "DOREPO_LOG_LEVEL"
	EnvLogTimestamp = "DOREPO_LOG_TIMESTAMP"
	EnvLogNoColor   = "DOREPO_LOG_NOCOLOR"
	EnvLogBypass    = "DOREPO_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// Bypass discards all output regardless of level.
	Bypass bool
	Out    io.Writer
}

// envOverrides mirrors Config with pointer fields so unset variables are
// distinguishable from zero values.
type envOverrides struct {
	Level     string `env:"DOREPO_LOG_LEVEL"`
	Timestamp *bool  `env:"DOREPO_LOG_TIMESTAMP"`
	NoColor   *bool  `env:"DOREPO_LOG_NOCOLOR"`
	Bypass    *bool  `env:"DOREPO_LOG_BYPASS"`
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// Apply installs cfg as the global zerolog logger.
func Apply(cfg Config) {
	if cfg.Bypass {
		log.Logger = zerolog.Nop()
		return
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		writer.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	ctx := zerolog.New(writer).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

func defaultConfig(profile Profile) Config {
	cfg := Config{}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		log.Warn().Msgf("logging.applyEnvOverrides ignored err=%v", err)
		return
	}
	if lvl, ok := ParseLevel(ov.Level); ok {
		cfg.Level = lvl
	}
	if ov.Timestamp != nil {
		cfg.Timestamp = *ov.Timestamp
	}
	if ov.NoColor != nil {
		cfg.NoColor = *ov.NoColor
	}
	if ov.Bypass != nil {
		cfg.Bypass = *ov.Bypass
	}
}

// ParseLevel accepts the level names used by config files and env vars.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
