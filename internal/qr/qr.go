// ABOUTME: Pairing challenge rendering to the terminal and to PNG files
// ABOUTME: The PNG copy lets headless operators scan from the data directory

package qr

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/2389/coven-archiver/internal/clock"
)

const pngSize = 512

// Renderer shows pairing challenges.
type Renderer struct {
	dir    string
	out    io.Writer
	clock  clock.Clock
	logger *slog.Logger
}

// NewRenderer writes terminal codes to out and PNG files into dir. A nil
// out skips the terminal; an empty dir skips the PNG.
func NewRenderer(dir string, out io.Writer, clk clock.Clock, logger *slog.Logger) *Renderer {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{dir: dir, out: out, clock: clk, logger: logger.With("component", "qr")}
}

// Show renders challenge. Failures are logged; pairing can still proceed
// from whichever output worked.
func (r *Renderer) Show(challenge string) {
	if challenge == "" {
		return
	}
	if r.out != nil {
		fmt.Fprintln(r.out, "Scan this QR code with the app to link this device:")
		qrterminal.GenerateHalfBlock(challenge, qrterminal.L, r.out)
	}
	if r.dir == "" {
		return
	}
	path, err := r.WritePNG(challenge)
	if err != nil {
		r.logger.Warn("writing QR image failed", "error", err)
		return
	}
	r.logger.Info("QR code saved", "path", path)
}

// WritePNG stores challenge as qr-<unixMillis>.png and returns the path.
func (r *Renderer) WritePNG(challenge string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating qr dir: %w", err)
	}
	name := "qr-" + strconv.FormatInt(r.clock.Now().UnixMilli(), 10) + ".png"
	path := filepath.Join(r.dir, name)
	if err := qrcode.WriteFile(challenge, qrcode.Medium, pngSize, path); err != nil {
		return "", fmt.Errorf("encoding qr png: %w", err)
	}
	return path, nil
}
