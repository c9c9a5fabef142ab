// ABOUTME: Tests for the WhatsApp client that need no network
// ABOUTME: Covers construction, the slog adapter and sends before a connection exists

package whatsapp

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-archiver/internal/message"
	"github.com/2389/coven-archiver/internal/transport"
)

func TestNew_RequiresSessionDB(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_CreatesSessionDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "whatsmeow.db")
	c, err := New(Options{SessionDB: path})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Dir(path))
	assert.True(t, c.AccountID().IsZero())
}

func TestClient_SendsBeforeConnect(t *testing.T) {
	c, err := New(Options{SessionDB: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, c.SendText(ctx, "628111@s.whatsapp.net", "hi"), transport.ErrNotConnected)
	assert.ErrorIs(t, c.SendDocument(ctx, "628111@s.whatsapp.net", transport.Document{FileName: "a.txt"}), transport.ErrNotConnected)
}

func TestClient_FetchMediaRejectsForeignHandle(t *testing.T) {
	c, err := New(Options{SessionDB: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)

	_, err = c.FetchMedia(context.Background(), message.Media{Handle: "mxc://example.org/abc"})
	assert.ErrorIs(t, err, ErrUnsupportedHandle)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	wa := newLogger(logger).Sub("Client")

	wa.Infof("connected to %s", "web.whatsapp.com")
	wa.Debugf("hidden %d", 1)
	wa.Warnf("retry %d", 2)

	out := buf.String()
	assert.Contains(t, out, `msg="connected to web.whatsapp.com"`)
	assert.Contains(t, out, "module=Client")
	assert.Contains(t, out, `msg="retry 2"`)
	assert.NotContains(t, out, "hidden")
}
