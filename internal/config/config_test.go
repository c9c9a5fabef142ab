// ABOUTME: Tests for settings loading and parsing
// ABOUTME: Covers TOML and YAML loading, env var expansion, duration parsing, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "archiver.toml", `
[transport]
kind = "whatsapp"
send_rate = 2.5
send_burst = 3

[whatsapp]
session_db = "sessions/main.db"

[archive]
data_dir = "/var/lib/archiver"
command_prefix = "/"
accept_self_commands = true
fetch_attempts = 7
fetch_delay = "1500ms"
reconnect_delay = "10s"
restart_delay = "20s"
dedupe_ttl = "1h"

[ledger]
dsn = "sqlite:///var/lib/archiver/ledger.db"

[logging]
level = "debug"
format = "json"

[metrics]
enabled = true
addr = ":9464"
path = "/metrics"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportWhatsApp, cfg.Transport.Kind)
	assert.Equal(t, 2.5, cfg.Transport.SendRate)
	assert.Equal(t, 3, cfg.Transport.SendBurst)
	assert.Equal(t, "/var/lib/archiver/sessions/main.db", cfg.SessionDBPath())
	assert.Equal(t, "/", cfg.Archive.CommandPrefix)
	assert.True(t, cfg.Archive.AcceptSelfCommands)
	assert.Equal(t, 7, cfg.Archive.FetchAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.Archive.FetchDelay)
	assert.Equal(t, 10*time.Second, cfg.Archive.ReconnectDelay)
	assert.Equal(t, 20*time.Second, cfg.Archive.RestartDelay)
	assert.Equal(t, time.Hour, cfg.Archive.DedupeTTL)
	assert.Equal(t, "sqlite:///var/lib/archiver/ledger.db", cfg.LedgerDSN())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "archiver.yaml", `
transport:
  kind: matrix
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@archiver:example.org"
  access_token: "syt_token"
archive:
  data_dir: "./data"
  reconnect_delay: "2s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportMatrix, cfg.Transport.Kind)
	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "@archiver:example.org", cfg.Matrix.UserID)
	assert.Equal(t, 2*time.Second, cfg.Archive.ReconnectDelay)
	// Unset values keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Archive.RestartDelay)
	assert.Equal(t, "!", cfg.Archive.CommandPrefix)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "empty.toml", ""))
	require.NoError(t, err)

	assert.Equal(t, TransportWhatsApp, cfg.Transport.Kind)
	assert.Equal(t, 5, cfg.Archive.FetchAttempts)
	assert.Equal(t, time.Second, cfg.Archive.FetchDelay)
	assert.Equal(t, 4*time.Second, cfg.Archive.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.Archive.RestartDelay)
	assert.Equal(t, filepath.Join(".", "data", "forwarded.json"), cfg.LedgerDSN())
	assert.Equal(t, filepath.Join(".", "sessions", "whatsmeow.db"), cfg.SessionDBPath())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_MATRIX_TOKEN", "secret-token")
	t.Setenv("TEST_DATA_DIR", "/srv/archive")

	path := writeConfig(t, "archiver.toml", `
[transport]
kind = "matrix"

[matrix]
homeserver = "https://matrix.org"
user_id = "@bot:matrix.org"
access_token = "${TEST_MATRIX_TOKEN}"

[archive]
data_dir = "${TEST_DATA_DIR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Matrix.AccessToken)
	assert.Equal(t, "/srv/archive", cfg.Archive.DataDir)
}

func TestLoad_MissingEnvVarFailsValidation(t *testing.T) {
	path := writeConfig(t, "archiver.toml", `
[transport]
kind = "matrix"

[matrix]
homeserver = "https://matrix.org"
user_id = "@bot:matrix.org"
access_token = "${DEFINITELY_UNSET_ARCHIVER_VAR}"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix.access_token is required")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/archiver.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidSyntax(t *testing.T) {
	_, err := Load(writeConfig(t, "bad.toml", "[transport\nkind = "))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "bad.yaml", "transport: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "archiver.toml", "[archive]\nfetch_delay = \"soon\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch_delay")

	_, err = Load(writeConfig(t, "archiver.toml", "[archive]\nrestart_delay = \"-1s\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restart_delay must not be negative")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "telegram" }, "transport.kind"},
		{"matrix without homeserver", func(c *Config) {
			c.Transport.Kind = TransportMatrix
		}, "matrix.homeserver is required"},
		{"matrix with bad scheme", func(c *Config) {
			c.Transport.Kind = TransportMatrix
			c.Matrix.Homeserver = "ftp://matrix.org"
		}, "http or https"},
		{"matrix without user", func(c *Config) {
			c.Transport.Kind = TransportMatrix
			c.Matrix.Homeserver = "https://matrix.org"
		}, "matrix.user_id is required"},
		{"negative send rate", func(c *Config) { c.Transport.SendRate = -1 }, "send_rate"},
		{"blank prefix", func(c *Config) { c.Archive.CommandPrefix = "  " }, "command_prefix"},
		{"zero attempts", func(c *Config) { c.Archive.FetchAttempts = 0 }, "fetch_attempts"},
		{"empty data dir", func(c *Config) { c.Archive.DataDir = "" }, "data_dir"},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, "metrics.addr"},
		{"metrics path without slash", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatYAML, formatFor("a.yaml"))
	assert.Equal(t, FormatYAML, formatFor("A.YML"))
	assert.Equal(t, FormatTOML, formatFor("a.toml"))
	assert.Equal(t, FormatTOML, formatFor("archiver"))
}
