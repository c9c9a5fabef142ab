// ABOUTME: JSON file ledger backend storing {"forwarded": [...]}
// ABOUTME: Rewrites the whole file atomically on every record; corrupt files start empty

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-archiver/internal/fsstore"
)

type fileState struct {
	Forwarded []string `json:"forwarded"`
}

// FileLedger keeps the key set in memory and persists it as JSON.
type FileLedger struct {
	mu     sync.Mutex
	path   string
	keys   map[string]struct{}
	order  []string
	logger *slog.Logger
}

// OpenFile loads the ledger at path. A missing file is an empty ledger. A
// corrupt file is also treated as empty and logged: every prior key is lost,
// so previously forwarded items may be forwarded again.
func OpenFile(path string, logger *slog.Logger) (*FileLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger: empty file path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &FileLedger{
		path:   path,
		keys:   make(map[string]struct{}),
		logger: logger.With("component", "ledger", "backend", "file"),
	}

	var st fileState
	found, err := fsstore.ReadJSON(path, &st)
	if err != nil {
		if !errors.Is(err, fsstore.ErrDecodeFailed) {
			return nil, fmt.Errorf("loading ledger: %w", err)
		}
		l.logger.Warn("ledger file corrupt, starting empty; prior forwards may repeat", "path", path, "error", err)
	}
	if found {
		for _, k := range st.Forwarded {
			if _, dup := l.keys[k]; dup || k == "" {
				continue
			}
			l.keys[k] = struct{}{}
			l.order = append(l.order, k)
		}
	}
	l.logger.Debug("ledger loaded", "path", path, "keys", len(l.order))
	return l, nil
}

// Has reports whether key was recorded.
func (l *FileLedger) Has(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok, nil
}

// Record adds key and rewrites the file. The key stays recorded in memory
// even when the write fails, so this process never forwards it twice.
func (l *FileLedger) Record(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return nil
	}
	l.keys[key] = struct{}{}
	l.order = append(l.order, key)

	snapshot := fileState{Forwarded: append([]string(nil), l.order...)}
	if err := fsstore.WriteJSONAtomic(l.path, snapshot, 0o644); err != nil {
		return fmt.Errorf("flushing ledger: %w", err)
	}
	return nil
}

// Len returns the number of recorded keys.
func (l *FileLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Close is a no-op; every record is already flushed.
func (l *FileLedger) Close() error { return nil }
