// ABOUTME: Identity store persisting the backup destination, owner and log threshold
// ABOUTME: Loads defaults on missing or corrupt files and saves synchronously on change

package botconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/2389/coven-archiver/internal/fsstore"
	"github.com/2389/coven-archiver/internal/identity"
)

// DefaultLogThreshold is the number of loggable events after which an
// identity's log file is sent to the backup destination.
const DefaultLogThreshold = 10

// Config is the bot's mutable identity configuration.
type Config struct {
	// BackupDestination receives mirrored media and batched logs. Empty disables forwarding.
	BackupDestination identity.ID
	// Owner is exempt from archiving and forwarding.
	Owner identity.ID
	// LogThreshold is always >= 1.
	LogThreshold int
}

// Default returns the configuration used when nothing has been persisted.
func Default() Config {
	return Config{LogThreshold: DefaultLogThreshold}
}

// fileConfig is the on-disk JSON shape; key names match existing deployments.
type fileConfig struct {
	BackupGroup      *string `json:"backupGroup"`
	Owner            *string `json:"owner"`
	LogSendThreshold int     `json:"logSendThreshold"`
}

func (c Config) toFile() fileConfig {
	fc := fileConfig{LogSendThreshold: c.LogThreshold}
	if !c.BackupDestination.IsZero() {
		s := c.BackupDestination.String()
		fc.BackupGroup = &s
	}
	if !c.Owner.IsZero() {
		s := c.Owner.String()
		fc.Owner = &s
	}
	return fc
}

func (fc fileConfig) toConfig() Config {
	c := Default()
	if fc.BackupGroup != nil {
		c.BackupDestination = identity.ID(*fc.BackupGroup)
	}
	if fc.Owner != nil {
		c.Owner = identity.ID(*fc.Owner)
	}
	if fc.LogSendThreshold >= 1 {
		c.LogThreshold = fc.LogSendThreshold
	}
	return c
}

// Store reads and writes Config at a fixed path.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the config file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger.With("component", "botconfig")}
}

// Path returns the config file location.
func (s *Store) Path() string { return s.path }

// Load returns the persisted config. A missing or unreadable file yields
// Default(); corruption is logged and never returned to the caller.
func (s *Store) Load() Config {
	var fc fileConfig
	found, err := fsstore.ReadJSON(s.path, &fc)
	if err != nil {
		if errors.Is(err, fsstore.ErrDecodeFailed) {
			s.logger.Warn("config file corrupt, using defaults", "path", s.path, "error", err)
		} else {
			s.logger.Warn("config file unreadable, using defaults", "path", s.path, "error", err)
		}
		return Default()
	}
	if !found {
		return Default()
	}
	return fc.toConfig()
}

// Save overwrites the config file with c.
func (s *Store) Save(c Config) error {
	if c.LogThreshold < 1 {
		c.LogThreshold = DefaultLogThreshold
	}
	if err := fsstore.WriteJSONAtomic(s.path, c.toFile(), 0o644); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the config file is written, created or
// replaced, until ctx is done. The parent directory is watched because
// atomic saves replace the file rather than writing to it.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					s.logger.Debug("config file changed", "path", s.path, "op", ev.Op.String())
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
