// ABOUTME: Bounded-retry media acquisition shielding the pipeline from transient failures
// ABOUTME: Fixed attempt count and fixed delay, both driven by an injectable clock

package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-archiver/internal/clock"
	"github.com/2389/coven-archiver/internal/message"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = time.Second
)

var (
	// ErrUnavailable means every attempt failed. It wraps the last error.
	ErrUnavailable = errors.New("media unavailable")
	// ErrEmptyPayload is treated like a failed attempt.
	ErrEmptyPayload = errors.New("media payload is empty")
)

// Source materializes a media payload. Transports implement it.
type Source interface {
	FetchMedia(ctx context.Context, m message.Media) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, m message.Media) ([]byte, error)

func (f SourceFunc) FetchMedia(ctx context.Context, m message.Media) ([]byte, error) {
	return f(ctx, m)
}

// Options tunes a Fetcher. Zero values take the defaults.
type Options struct {
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Fetcher retries a Source a fixed number of times.
type Fetcher struct {
	source   Source
	attempts int
	delay    time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewFetcher wraps source with retry.
func NewFetcher(source Source, opts Options) *Fetcher {
	f := &Fetcher{
		source:   source,
		attempts: opts.Attempts,
		delay:    opts.Delay,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if f.attempts < 1 {
		f.attempts = DefaultAttempts
	}
	if f.delay <= 0 {
		f.delay = DefaultDelay
	}
	if f.clock == nil {
		f.clock = clock.Real{}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "media")
	return f
}

// Attempts returns the configured attempt bound.
func (f *Fetcher) Attempts() int { return f.attempts }

// Fetch returns the payload of m. After the last failed attempt it returns
// an error wrapping ErrUnavailable and the final cause. A done context stops
// the loop early with the context's error.
func (f *Fetcher) Fetch(ctx context.Context, m message.Media) ([]byte, error) {
	var last error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := f.source.FetchMedia(ctx, m)
		if err == nil && len(data) == 0 {
			err = ErrEmptyPayload
		}
		if err == nil {
			if attempt > 1 {
				f.logger.Debug("media fetched after retry", "attempt", attempt)
			}
			return data, nil
		}
		last = err
		f.logger.Debug("media fetch attempt failed", "attempt", attempt, "of", f.attempts, "error", err)

		if attempt < f.attempts {
			if err := f.clock.Sleep(ctx, f.delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, f.attempts, last)
}
