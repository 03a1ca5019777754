package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/danmuck/dorepo/internal/protocol/session"
	"github.com/danmuck/dorepo/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dorepo.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAuthorityTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "ai.toml")
	if err := WriteTemplate(path, "authority", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "authority", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.IsAuthority() {
		t.Fatalf("unexpected role: %q", cfg.Role)
	}
	if cfg.Channel != 4000 || cfg.StateServer != 10000 || cfg.Database != 4003 {
		t.Fatalf("unexpected channels: %d %d %d", cfg.Channel, cfg.StateServer, cfg.Database)
	}
	if cfg.ConName != "ai-1" {
		t.Fatalf("unexpected con name: %q", cfg.ConName)
	}
	if cfg.Objects != (Range{Min: 100000000, Max: 100009999}) {
		t.Fatalf("unexpected object range: %+v", cfg.Objects)
	}
	if cfg.Channels != (Range{Min: 1000000, Max: 1009999}) {
		t.Fatalf("unexpected channel range: %+v", cfg.Channels)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.RequestTimeout)
	}
	if cfg.Session.WriteTimeout != 15*time.Second {
		t.Fatalf("unexpected write timeout: %v", cfg.Session.WriteTimeout)
	}
	if cfg.Tracing.Service != "dorepo-ai" || cfg.Tracing.Endpoint != "" {
		t.Fatalf("unexpected tracing: %+v", cfg.Tracing)
	}

	opts := cfg.ServerOptions()
	if opts.Channel != 4000 || opts.ObjectMax != 100009999 || opts.ChannelMin != 1000000 {
		t.Fatalf("unexpected server options: %+v", opts)
	}
}

func TestLoadClientTemplateAndSchema(t *testing.T) {
	testlog.Start(t)
	tmpl, err := Template("client")
	require.NoError(t, err)
	cfg, err := Load(writeConfig(t, tmpl))
	require.NoError(t, err)

	require.Equal(t, RoleClient, cfg.Role)
	require.Equal(t, "dev", cfg.Hello.Version)
	require.Equal(t, 10*time.Second, cfg.Heartbeat)
	require.Equal(t, []InterestConfig{{Handle: 1, Context: 1, Parent: 4000, Zones: []uint32{100, 101}}}, cfg.Interests)
	require.Equal(t, 3, cfg.Session.MaxConnectAttempts)
	require.Equal(t, "127.0.0.1:9180", cfg.Admin.Addr)
	require.Equal(t, datagram.Latin1, cfg.WireCharset)
	require.Equal(t, datagram.Latin1, cfg.RepositoryOptions().Charset)

	reg, err := BuildSchema(cfg.Classes)
	require.NoError(t, err)
	require.Len(t, reg.Classes(), 2)

	avatar, ok := reg.ClassByNumber(2)
	require.True(t, ok)
	require.Equal(t, "DistributedAvatar", avatar.Name)

	hp, ok := avatar.FieldByName("setHp")
	require.True(t, ok)
	require.Equal(t, []byte{100, 0}, hp.Default)
	require.True(t, hp.Is(schema.OwnRecv))

	nameXY, ok := avatar.FieldByName("setNameXY")
	require.True(t, ok)
	require.Equal(t, schema.Molecular, nameXY.Kind)
	require.Equal(t, []uint16{10, 11}, nameXY.Components)
	require.Equal(t, []schema.Encoding{schema.String, schema.Int32, schema.Int32}, nameXY.Params)

	required := avatar.RequiredFields()
	require.Len(t, required, 3)
	require.Equal(t, "setName", required[0].Name)
}

func TestLoadDefaultsForMissingKeys(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, "name = \"bare\"\n"))
	require.NoError(t, err)

	def := DefaultConfig()
	require.Equal(t, "bare", cfg.Name)
	require.Equal(t, def.Role, cfg.Role)
	require.Equal(t, def.Address, cfg.Address)
	require.Equal(t, def.Channels, cfg.Channels)
	require.Equal(t, def.Session, cfg.Session)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Admin.CorsOrigins)
	require.Empty(t, cfg.Classes)
}

func TestEnvOverridesFile(t *testing.T) {
	testlog.Start(t)
	t.Setenv("DOREPO_ROLE", "Authority")
	t.Setenv("DOREPO_STATE_SERVER", "20000")
	t.Setenv("DOREPO_REQUEST_TIMEOUT", "2s")
	t.Setenv("DOREPO_ADMIN_ADDR", " :9999 ")
	t.Setenv("DOREPO_ADMIN_TOKEN", "tok")

	cfg, err := Load(writeConfig(t, `
role = "client"
request_timeout = "1m"

[authority]
state_server = 10000
`))
	require.NoError(t, err)
	require.Equal(t, RoleAuthority, cfg.Role)
	require.Equal(t, uint64(20000), cfg.StateServer)
	require.Equal(t, 2*time.Second, cfg.RequestTimeout)
	require.Equal(t, ":9999", cfg.Admin.Addr)
	require.Equal(t, "tok", cfg.Admin.Token)
	require.Equal(t, datagram.Raw, cfg.WireCharset)

	t.Setenv("DOREPO_WIRE_CHARSET", "ISO-8859-1")
	cfg, err = Load(writeConfig(t, "wire_charset = \"raw\"\n"))
	require.NoError(t, err)
	require.Equal(t, datagram.Latin1, cfg.WireCharset)
}

func TestLoadSessionTLS(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, `
[session]
read_timeout = "30s"
security_mode = "Production"

[session.tls]
enabled = true
mutual = true
cert_file = "client.pem"
key_file = "client.key"
ca_file = "ca.pem"
server_name = "md.local"
`))
	require.NoError(t, err)
	require.Equal(t, session.SecurityModeProduction, cfg.Session.SecurityMode)
	require.Equal(t, 30*time.Second, cfg.Session.ReadTimeout)
	require.True(t, cfg.Session.TLS.Mutual)
	require.Equal(t, "md.local", cfg.Session.TLS.ServerName)

	_, err = Load(writeConfig(t, `
[session]
security_mode = "production"
`))
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorIs(t, err, session.ErrTLSRequired)
}

func TestLoadRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":     "nmae = \"typo\"\n",
		"bad duration":    "heartbeat = \"soon\"\n",
		"bad role":        "role = \"observer\"\n",
		"bad charset":     "wire_charset = \"utf-16\"\n",
		"channel range":   "[channels]\nmin = 10\nmax = 1\n",
		"empty interest":  "[[interest]]\nhandle = 1\nparent = 1\n",
		"unknown keyword": "[[class]]\nname = \"A\"\nnumber = 1\n[[class.fields]]\nname = \"f\"\ntag = 1\nparams = [\"uint8\"]\nkeywords = [\"loud\"]\n",
		"bad default":     "[[class]]\nname = \"A\"\nnumber = 1\n[[class.fields]]\nname = \"f\"\ntag = 1\nparams = [\"uint8\"]\ndefault = [\"300\"]\n",
		"bad component":   "[[class]]\nname = \"A\"\nnumber = 1\n[[class.fields]]\nname = \"m\"\ntag = 1\nkind = \"molecular\"\ncomponents = [\"nope\"]\n",
		"duplicate class": "[[class]]\nname = \"A\"\nnumber = 1\n[[class]]\nname = \"B\"\nnumber = 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestBuildSchemaFieldErrorsAreTyped(t *testing.T) {
	testlog.Start(t)
	_, err := BuildSchema([]ClassDecl{{
		Name:   "A",
		Number: 1,
		Fields: []FieldDecl{{Name: "f", Tag: 1, Params: []string{"uint8", "uint8"}, Default: []string{"1"}}},
	}})
	var verr schema.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "A", verr.Class)
	require.Equal(t, "f", verr.Field)
}

func TestTemplateUnknownRole(t *testing.T) {
	testlog.Start(t)
	_, err := Template("mirage")
	require.Error(t, err)
}
