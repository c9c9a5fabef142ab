// ABOUTME: Atomic JSON file persistence shared by the config store and file ledger
// ABOUTME: Writes go to a hidden sibling temp file that is synced and renamed over the target

package fsstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultPerm fs.FileMode = 0o644

var (
	// ErrDecodeFailed marks a file that exists but does not hold valid JSON.
	// Callers treat it as absent.
	ErrDecodeFailed = errors.New("fsstore: decode failed")
	// ErrAtomicWriteFailed marks a replace that left the target untouched.
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

// ReadJSON decodes the file at path into out. Missing and whitespace-only
// files report false with a nil error.
func ReadJSON(path string, out any) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	switch err := json.NewDecoder(f).Decode(out); {
	case err == nil:
		return true, nil
	case errors.Is(err, io.EOF):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, path, err)
	}
}

// WriteJSONAtomic encodes v with two-space indentation and replaces path.
func WriteJSONAtomic(path string, v any, perm fs.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return WriteAtomic(path, append(data, '\n'), perm)
}

// WriteAtomic replaces path with content. Readers see either the old file
// or the new one, never a partial write. Parent directories are created.
func WriteAtomic(path string, content []byte, perm fs.FileMode) error {
	if perm == 0 {
		perm = defaultPerm
	}
	dir := filepath.Dir(path)
	fail := func(op string, cause error) error {
		return fmt.Errorf("%w: %s %s: %w", ErrAtomicWriteFailed, op, path, cause)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fail("create temp", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	steps := []struct {
		op  string
		run func() error
	}{
		{"write", func() error { _, err := tmp.Write(content); return err }},
		{"sync", tmp.Sync},
		{"chmod", func() error { return tmp.Chmod(perm) }},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmp.Name(), path) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fail(step.op, err)
		}
	}
	renamed = true

	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
