// ABOUTME: Tests for QR rendering to the terminal and PNG files
// ABOUTME: Uses a manual clock so PNG names are predictable

package qr

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-archiver/internal/clock"
)

func TestShow_WritesTerminalAndPNG(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	clk := clock.NewManual(time.UnixMilli(1714564800000))
	r := NewRenderer(dir, &out, clk, nil)

	r.Show("2@pairing-ref,abc,def")

	assert.Contains(t, out.String(), "Scan this QR code")
	assert.Greater(t, out.Len(), 200, "terminal QR should be drawn")

	data, err := os.ReadFile(filepath.Join(dir, "qr-1714564800000.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "file should be a PNG")
}

func TestShow_EmptyChallengeIsIgnored(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	NewRenderer(dir, &out, nil, nil).Show("")

	assert.Zero(t, out.Len())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestShow_TerminalOnly(t *testing.T) {
	var out bytes.Buffer
	NewRenderer("", &out, nil, nil).Show("2@x")
	assert.NotZero(t, out.Len())
}
