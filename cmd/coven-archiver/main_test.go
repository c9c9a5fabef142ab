// ABOUTME: Tests for coven-archiver command helpers
// ABOUTME: Covers config path resolution, logger setup, the init wizard and transport selection

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-archiver/internal/config"
	"github.com/2389/coven-archiver/internal/transport/matrix"
	"github.com/2389/coven-archiver/internal/transport/whatsapp"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COVEN_ARCHIVER_CONFIG", "/etc/archiver.yaml")
	assert.Equal(t, "/etc/archiver.yaml", getConfigPath())

	t.Setenv("COVEN_ARCHIVER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "coven", "archiver.toml"), getConfigPath())
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger("warn", "json", &buf)
	logger.Info("quiet")
	logger.Warn("loud", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, `"msg":"loud"`)
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	setupLogger("bogus", "text", &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.TransportWhatsApp, cfg.Transport.Kind)
}

func TestRunInit_WritesValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coven", "archiver.toml")
	t.Setenv("COVEN_ARCHIVER_CONFIG", path)

	answers := strings.Join([]string{
		"matrix",
		filepath.Join(dir, "data"),
		"https://matrix.example.org",
		"@archiver:example.org",
		"syt_secret",
		"sqlite://ledger.db",
		"y",
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(answers), &out))
	assert.Contains(t, out.String(), "Config written to")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.TransportMatrix, cfg.Transport.Kind)
	assert.Equal(t, "@archiver:example.org", cfg.Matrix.UserID)
	assert.Equal(t, "sqlite://ledger.db", cfg.LedgerDSN())
	assert.True(t, cfg.Metrics.Enabled)
}

func TestRunInit_DeclineOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archiver.toml")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0600))
	t.Setenv("COVEN_ARCHIVER_CONFIG", path)

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader("n\n"), &out))
	assert.Contains(t, out.String(), "Aborted.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestNewTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.DataDir = t.TempDir()
	client, err := newTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &whatsapp.Client{}, client)

	cfg.Transport.Kind = config.TransportMatrix
	cfg.Matrix = config.MatrixConfig{Homeserver: "https://matrix.example.org", UserID: "@a:example.org", AccessToken: "t"}
	client, err = newTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &matrix.Client{}, client)

	cfg.Transport.Kind = "telegram"
	_, err = newTransport(cfg, nil)
	assert.Error(t, err)
}
