// ABOUTME: Forward ledger interface and DSN-based backend selection
// ABOUTME: A durable set of keys that have already been forwarded to the backup destination

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrEmptyKey is returned when recording an empty key.
	ErrEmptyKey = errors.New("ledger: empty key")
	// ErrUnknownScheme is returned by Open for unsupported DSN schemes.
	ErrUnknownScheme = errors.New("ledger: unknown dsn scheme")
)

// Ledger records forward dedupe keys. Once recorded, a key is present forever.
type Ledger interface {
	// Has reports whether key was recorded.
	Has(ctx context.Context, key string) (bool, error)
	// Record adds key and makes it durable before returning.
	Record(ctx context.Context, key string) error
	Close() error
}

// Open builds a ledger from a DSN:
//
//	data/forwarded.json          JSON file (default)
//	file:///var/lib/x/fwd.json   JSON file
//	sqlite://data/ledger.db      SQLite database
//	postgres://user@host/db      PostgreSQL database
//	memory:                      in-process only
func Open(dsn string, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("ledger: empty dsn")
	}

	scheme, rest := splitScheme(dsn)
	switch scheme {
	case "", "file":
		return wrap(OpenFile(rest, logger))
	case "memory", "mem":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return wrap(OpenSQLite(rest, logger))
	case "postgres", "postgresql":
		return wrap(OpenPostgres(dsn, logger))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
}

// wrap avoids returning a typed nil pointer inside a non-nil Ledger.
func wrap[L Ledger](l L, err error) (Ledger, error) {
	if err != nil {
		return nil, err
	}
	return l, nil
}

// splitScheme separates "scheme://rest" or "scheme:rest". Bare paths have no
// scheme. Single-letter schemes are treated as Windows drive letters.
func splitScheme(dsn string) (string, string) {
	if i := strings.Index(dsn, "://"); i > 0 {
		return strings.ToLower(dsn[:i]), dsn[i+3:]
	}
	if i := strings.Index(dsn, ":"); i > 1 && !strings.ContainsAny(dsn[:i], `/\.`) {
		return strings.ToLower(dsn[:i]), dsn[i+1:]
	}
	return "", dsn
}
