// ABOUTME: Supervised restart loop for transport sessions
// ABOUTME: Restarts forever with a fixed delay; the delay runs on an injectable clock

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-archiver/internal/clock"
	"github.com/2389/coven-archiver/internal/metrics"
	"github.com/2389/coven-archiver/internal/transport"
)

const (
	// DefaultReconnectDelay follows a session that ran and then disconnected.
	DefaultReconnectDelay = 4 * time.Second
	// DefaultRestartDelay follows a session that failed to start.
	DefaultRestartDelay = 5 * time.Second
)

// Session runs one transport session until it ends. runID identifies the
// attempt in logs.
type Session func(ctx context.Context, runID string) error

// Options tunes Run.
type Options struct {
	ReconnectDelay time.Duration
	RestartDelay   time.Duration
	Clock          clock.Clock
	Metrics        *metrics.Recorder
	Logger         *slog.Logger
	// NewRunID overrides run ID generation.
	NewRunID func() string
}

// Run calls session until ctx is done. Every return of session, error or
// not, is followed by a fixed delay and a fresh session; there is no limit
// and no backoff growth. Run returns ctx.Err() once ctx is done.
func Run(ctx context.Context, session Session, opts Options) error {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	logger := opts.Logger.With("component", "supervisor")

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		runID := opts.NewRunID()
		logger.Info("starting session", "run_id", runID, "attempt", attempt)

		err := session(ctx, runID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Info("supervisor stopping", "run_id", runID)
			return ctxErr
		}

		delay := opts.ReconnectDelay
		switch {
		case errors.Is(err, transport.ErrStartFailed):
			delay = opts.RestartDelay
			logger.Error("session failed to start", "run_id", runID, "error", err, "retry_in", delay)
		case err != nil:
			logger.Warn("session ended", "run_id", runID, "error", err, "retry_in", delay)
		default:
			logger.Warn("session ended without error", "run_id", runID, "retry_in", delay)
		}

		opts.Metrics.Restart()
		if err := opts.Clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
