// ABOUTME: On-disk log store and media vault rooted at the data directory
// ABOUTME: Append-only per-identity logs and timestamped media files under category dirs

package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-archiver/internal/clock"
	"github.com/2389/coven-archiver/internal/identity"
)

// Category groups logs and media by conversation kind.
type Category string

const (
	Users  Category = "users"
	Groups Category = "groups"
	Status Category = "status"
)

// Categories lists every category in bootstrap order.
var Categories = []Category{Users, Groups, Status}

// CategoryFor maps a chat kind to its storage category.
func CategoryFor(kind identity.Kind) Category {
	switch kind {
	case identity.KindGroup:
		return Groups
	case identity.KindStatus:
		return Status
	default:
		return Users
	}
}

const (
	dirPerm   os.FileMode = 0o755
	logPerm   os.FileMode = 0o644
	mediaPerm os.FileMode = 0o666

	logExt = ".txt"
)

// ErrEmptyPayload is returned when asked to save zero bytes of media.
var ErrEmptyPayload = errors.New("archive: empty media payload")

// Store owns the data directory layout:
//
//	logs/{users,groups,status}/<id>.txt
//	media/{users,groups,status}/<id>/<prefix>_<unixMillis>.<ext>
//	data/  sessions/  qr/
type Store struct {
	root   string
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a store rooted at root. Nothing is created until Bootstrap or
// the first write.
func New(root string, clk clock.Clock, logger *slog.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, clock: clk, logger: logger.With("component", "archive")}
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// DataDir holds the forward ledger and other process state.
func (s *Store) DataDir() string { return filepath.Join(s.root, "data") }

// SessionsDir holds the transport's session store.
func (s *Store) SessionsDir() string { return filepath.Join(s.root, "sessions") }

// QRDir receives pairing challenge images.
func (s *Store) QRDir() string { return filepath.Join(s.root, "qr") }

// ConfigPath is the location of the bot's config.json.
func (s *Store) ConfigPath() string { return filepath.Join(s.root, "config.json") }

func (s *Store) requiredDirs() []string {
	dirs := []string{s.SessionsDir(), s.DataDir(), s.QRDir()}
	for _, c := range Categories {
		dirs = append(dirs, filepath.Join(s.root, "logs", string(c)))
		dirs = append(dirs, filepath.Join(s.root, "media", string(c)))
	}
	return dirs
}

// Bootstrap creates the directory tree. A regular file or symlink sitting
// where a required directory belongs is removed and replaced.
func (s *Store) Bootstrap() error {
	if err := s.ensureDir(s.root); err != nil {
		return err
	}
	for _, parent := range []string{filepath.Join(s.root, "logs"), filepath.Join(s.root, "media")} {
		if err := s.ensureDir(parent); err != nil {
			return err
		}
	}
	for _, dir := range s.requiredDirs() {
		if err := s.ensureDir(dir); err != nil {
			return err
		}
	}
	s.logger.Debug("data directory ready", "root", s.root)
	return nil
}

func (s *Store) ensureDir(dir string) error {
	info, err := os.Lstat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		s.logger.Warn("replacing non-directory at required path", "path", dir, "mode", info.Mode().String())
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("inspecting %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// LogPath returns the log file for an identity in a category.
func (s *Store) LogPath(cat Category, id identity.ID) string {
	return filepath.Join(s.root, "logs", string(cat), identity.Sanitize(id)+logExt)
}

// AppendLog appends line and a newline to the identity's log file.
func (s *Store) AppendLog(cat Category, id identity.ID, line string) error {
	path := s.LogPath(cat, id)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logPerm)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", path, err)
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("appending to log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing log %s: %w", path, err)
	}
	return nil
}

// MediaDir returns the directory holding an identity's media.
func (s *Store) MediaDir(cat Category, id identity.ID) string {
	return filepath.Join(s.root, "media", string(cat), identity.Sanitize(id))
}

// SaveMedia writes payload to {prefix}_{unixMillis}.{ext} under the identity's
// media directory and returns the path. If a file with that name already
// exists the timestamp is bumped until the name is free, so a saved
// artifact is never overwritten.
func (s *Store) SaveMedia(cat Category, id identity.ID, prefix, ext string, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}
	dir := s.MediaDir(cat, id)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating media dir: %w", err)
	}
	prefix = safeName(prefix, "media")
	ext = safeName(ext, "bin")

	millis := s.clock.Now().UnixMilli()
	for {
		path := filepath.Join(dir, prefix+"_"+strconv.FormatInt(millis, 10)+"."+ext)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mediaPerm)
		if errors.Is(err, os.ErrExist) {
			millis++
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating media file: %w", err)
		}
		if _, err := f.Write(payload); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("writing media file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("closing media file: %w", err)
		}
		// The process umask strips group/other write bits from OpenFile.
		if err := os.Chmod(path, mediaPerm); err != nil {
			s.logger.Debug("chmod media file failed", "path", path, "error", err)
		}
		return path, nil
	}
}

func safeName(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return identity.Sanitize(identity.ID(s))
}

// ReadLog returns an identity's accumulated log and its modification time.
// A missing log returns an error matching os.ErrNotExist.
func (s *Store) ReadLog(cat Category, id identity.ID) ([]byte, time.Time, error) {
	path := s.LogPath(cat, id)
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat log: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading log: %w", err)
	}
	return data, info.ModTime(), nil
}
