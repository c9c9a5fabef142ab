// ABOUTME: Outbound rate limiting wrapper around a transport Sender
// ABOUTME: Paces sends with golang.org/x/time/rate so bursts of forwards stay under provider limits

package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/2389/coven-archiver/internal/identity"
)

// Limited paces every send through a token bucket.
type Limited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewLimited wraps next. perSecond <= 0 disables limiting and returns next unchanged.
func NewLimited(next Sender, perSecond float64, burst int) Sender {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) SendText(ctx context.Context, to identity.ID, text string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}
	return l.next.SendText(ctx, to, text)
}

func (l *Limited) SendDocument(ctx context.Context, to identity.ID, doc Document) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}
	return l.next.SendDocument(ctx, to, doc)
}
