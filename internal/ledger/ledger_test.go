// ABOUTME: Tests for the forward ledger backends and DSN selection
// ABOUTME: Covers idempotent dedup, durability across reopen and corrupt-file recovery

package ledger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// exerciseLedger runs the shared contract against any backend.
func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	has, err := l.Has(ctx, "3EB0ABCDEF")
	require.NoError(t, err)
	assert.False(t, has, "fresh ledger should not contain key")

	require.NoError(t, l.Record(ctx, "3EB0ABCDEF"))

	has, err = l.Has(ctx, "3EB0ABCDEF")
	require.NoError(t, err)
	assert.True(t, has, "recorded key should be present")

	// Second check after one record still says already forwarded
	has, err = l.Has(ctx, "3EB0ABCDEF")
	require.NoError(t, err)
	assert.True(t, has)

	// Recording twice is harmless
	require.NoError(t, l.Record(ctx, "3EB0ABCDEF"))

	require.NoError(t, l.Record(ctx, "6281234.txt:1700000000000"))
	has, err = l.Has(ctx, "6281234.txt:1700000000000")
	require.NoError(t, err)
	assert.True(t, has)

	assert.ErrorIs(t, l.Record(ctx, ""), ErrEmptyKey)
}

func TestMemoryLedger(t *testing.T) {
	exerciseLedger(t, NewMemory())
}

func TestFileLedger_Contract(t *testing.T) {
	l, err := OpenFile(filepath.Join(t.TempDir(), "data", "forwarded.json"), discardLogger())
	require.NoError(t, err)
	exerciseLedger(t, l)
	assert.Equal(t, 2, l.Len())
}

func TestFileLedger_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forwarded.json")
	ctx := context.Background()

	l, err := OpenFile(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, "MSG1"))
	require.NoError(t, l.Record(ctx, "MSG2"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"forwarded": ["MSG1", "MSG2"]}`, string(data))

	reopened, err := OpenFile(path, discardLogger())
	require.NoError(t, err)
	has, err := reopened.Has(ctx, "MSG2")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFileLedger_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forwarded.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"forwarded": [`), 0o644))

	l, err := OpenFile(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	require.NoError(t, l.Record(context.Background(), "AFTER"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"forwarded": ["AFTER"]}`, string(data))
}

func TestFileLedger_SkipsDuplicatesOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forwarded.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"forwarded": ["A", "A", "", "B"]}`), 0o644))

	l, err := OpenFile(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
}

func TestSQLiteLedger_Contract(t *testing.T) {
	l, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	exerciseLedger(t, l)
}

func TestSQLiteLedger_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, "KEY"))
	require.NoError(t, l.Close())

	reopened, err := OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	has, err := reopened.Has(ctx, "KEY")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPostgresLedger_Integration(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ARCHIVER_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set ARCHIVER_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	l, err := OpenPostgres(dsn, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = l.db.Exec("DELETE FROM forwarded WHERE key IN ('3EB0ABCDEF', '6281234.txt:1700000000000')")
		l.Close()
	})
	exerciseLedger(t, l)
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(filepath.Join(dir, "forwarded.json"), discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileLedger{}, l)

	l, err = Open("file://"+filepath.Join(dir, "other.json"), discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileLedger{}, l)

	l, err = Open("memory:", discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, l)

	l, err = Open("sqlite://"+filepath.Join(dir, "ledger.db"), discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLLedger{}, l)
	require.NoError(t, l.Close())

	_, err = Open("redis://localhost", discardLogger())
	assert.ErrorIs(t, err, ErrUnknownScheme)

	_, err = Open("  ", discardLogger())
	assert.Error(t, err)
}

func TestSplitScheme(t *testing.T) {
	tests := []struct {
		dsn, scheme, rest string
	}{
		{"data/forwarded.json", "", "data/forwarded.json"},
		{"/abs/forwarded.json", "", "/abs/forwarded.json"},
		{"file:///abs/f.json", "file", "/abs/f.json"},
		{"sqlite::memory:", "sqlite", ":memory:"},
		{"memory:", "memory", ""},
		{`C:\data\f.json`, "", `C:\data\f.json`},
		{"./rel:odd.json", "", "./rel:odd.json"},
	}
	for _, tt := range tests {
		scheme, rest := splitScheme(tt.dsn)
		assert.Equal(t, tt.scheme, scheme, tt.dsn)
		assert.Equal(t, tt.rest, rest, tt.dsn)
	}
}
