// ABOUTME: Tests for transport helpers: state names and the outbound rate limiter
// ABOUTME: Uses a counting sender to observe pacing and passthrough

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-archiver/internal/identity"
)

type countingSender struct {
	texts int
	docs  int
}

func (c *countingSender) SendText(context.Context, identity.ID, string) error {
	c.texts++
	return nil
}

func (c *countingSender) SendDocument(context.Context, identity.ID, Document) error {
	c.docs++
	return nil
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "pairing", StatePairing.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestNewLimited_DisabledReturnsInner(t *testing.T) {
	inner := &countingSender{}
	assert.Same(t, inner, NewLimited(inner, 0, 5))
}

func TestLimited_PassesThrough(t *testing.T) {
	inner := &countingSender{}
	s := NewLimited(inner, 1000, 10)

	ctx := context.Background()
	require.NoError(t, s.SendText(ctx, "g@g.us", "hi"))
	require.NoError(t, s.SendDocument(ctx, "g@g.us", Document{FileName: "a.txt"}))

	assert.Equal(t, 1, inner.texts)
	assert.Equal(t, 1, inner.docs)
}

func TestLimited_RespectsContext(t *testing.T) {
	inner := &countingSender{}
	// One token per hour with a burst of one: the second send must wait
	s := NewLimited(inner, 1.0/3600, 1)

	require.NoError(t, s.SendText(context.Background(), "g@g.us", "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.SendText(ctx, "g@g.us", "second")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.texts, "blocked send should never reach the transport")
}
