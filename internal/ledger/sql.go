// ABOUTME: SQL ledger backends on SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq)
// ABOUTME: One keyed table with insert-if-absent semantics; safe across processes on Postgres

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const sqlOperationTimeout = 5 * time.Second

type dialect struct {
	name   string
	schema string
	insert string
	has    string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `CREATE TABLE IF NOT EXISTS forwarded (
		key TEXT PRIMARY KEY,
		recorded_at DATETIME NOT NULL
	)`,
	insert: `INSERT OR IGNORE INTO forwarded (key, recorded_at) VALUES (?, ?)`,
	has:    `SELECT 1 FROM forwarded WHERE key = ?`,
}

var postgresDialect = dialect{
	name: "postgres",
	schema: `CREATE TABLE IF NOT EXISTS forwarded (
		key TEXT PRIMARY KEY,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	insert: `INSERT INTO forwarded (key, recorded_at) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
	has:    `SELECT 1 FROM forwarded WHERE key = $1`,
}

// SQLLedger stores keys in a SQL table.
type SQLLedger struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// OpenSQLite opens (or creates) a SQLite ledger at path.
// Parent directories are created if needed.
func OpenSQLite(path string, logger *slog.Logger) (*SQLLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger: empty sqlite path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite ledger: %w", err)
	}
	// Single writer; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	return newSQLLedger(db, sqliteDialect, logger)
}

// OpenPostgres connects to a PostgreSQL ledger.
func OpenPostgres(dsn string, logger *slog.Logger) (*SQLLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres ledger: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres ledger: %w", err)
	}
	return newSQLLedger(db, postgresDialect, logger)
}

func newSQLLedger(db *sql.DB, d dialect, logger *slog.Logger) (*SQLLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &SQLLedger{
		db:      db,
		dialect: d,
		logger:  logger.With("component", "ledger", "backend", d.name),
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	l.logger.Info("SQL ledger initialized")
	return l, nil
}

// Has reports whether key was recorded.
func (l *SQLLedger) Has(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	var one int
	err := l.db.QueryRowContext(ctx, l.dialect.has, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying ledger: %w", err)
	}
	return true, nil
}

// Record inserts key if absent. The write is committed before returning.
func (l *SQLLedger) Record(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	if _, err := l.db.ExecContext(ctx, l.dialect.insert, key, time.Now().UTC()); err != nil {
		return fmt.Errorf("recording ledger key: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}
