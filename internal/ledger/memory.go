// ABOUTME: In-memory ledger backend for tests and dry runs
// ABOUTME: Nothing survives a restart

package ledger

import (
	"context"
	"sync"
)

// MemoryLedger is a non-durable Ledger.
type MemoryLedger struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{keys: make(map[string]struct{})}
}

func (m *MemoryLedger) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemoryLedger) Record(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
	return nil
}

func (m *MemoryLedger) Close() error { return nil }
