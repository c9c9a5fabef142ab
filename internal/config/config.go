// ABOUTME: Process settings loading for coven-archiver
// ABOUTME: Supports TOML or YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportWhatsApp = "whatsapp"
	TransportMatrix   = "matrix"
)

// Config represents the complete coven-archiver process configuration
type Config struct {
	Transport TransportConfig `toml:"transport" yaml:"transport"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp" yaml:"whatsapp"`
	Matrix    MatrixConfig    `toml:"matrix" yaml:"matrix"`
	Archive   ArchiveConfig   `toml:"archive" yaml:"archive"`
	Ledger    LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// TransportConfig selects the messaging network and paces outbound sends
type TransportConfig struct {
	Kind string `toml:"kind" yaml:"kind"`
	// SendRate is outbound messages per second; 0 disables limiting.
	SendRate  float64 `toml:"send_rate" yaml:"send_rate"`
	SendBurst int     `toml:"send_burst" yaml:"send_burst"`
}

// WhatsAppConfig holds whatsmeow session settings
type WhatsAppConfig struct {
	// SessionDB is the SQLite file for device keys, relative to the data dir.
	SessionDB string `toml:"session_db" yaml:"session_db"`
}

// MatrixConfig holds Matrix account settings
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver" yaml:"homeserver"`
	UserID      string `toml:"user_id" yaml:"user_id"`
	AccessToken string `toml:"access_token" yaml:"access_token"`
}

// ArchiveConfig holds pipeline and storage settings
type ArchiveConfig struct {
	DataDir            string `toml:"data_dir" yaml:"data_dir"`
	CommandPrefix      string `toml:"command_prefix" yaml:"command_prefix"`
	AcceptSelfCommands bool   `toml:"accept_self_commands" yaml:"accept_self_commands"`
	FetchAttempts      int    `toml:"fetch_attempts" yaml:"fetch_attempts"`

	FetchDelay     time.Duration `toml:"-" yaml:"-"`
	ReconnectDelay time.Duration `toml:"-" yaml:"-"`
	RestartDelay   time.Duration `toml:"-" yaml:"-"`
	DedupeTTL      time.Duration `toml:"-" yaml:"-"`

	// Raw string values for unmarshaling
	FetchDelayRaw     string `toml:"fetch_delay" yaml:"fetch_delay"`
	ReconnectDelayRaw string `toml:"reconnect_delay" yaml:"reconnect_delay"`
	RestartDelayRaw   string `toml:"restart_delay" yaml:"restart_delay"`
	DedupeTTLRaw      string `toml:"dedupe_ttl" yaml:"dedupe_ttl"`
}

// LedgerConfig selects the forward ledger backend
type LedgerConfig struct {
	// DSN is a bare path, file://, sqlite://, postgres:// or memory:.
	// Empty means data/forwarded.json under the data dir.
	DSN string `toml:"dsn" yaml:"dsn"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
	Path    string `toml:"path" yaml:"path"`
}

// Default returns the settings used for anything a file leaves unset.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{Kind: TransportWhatsApp, SendBurst: 1},
		WhatsApp:  WhatsAppConfig{SessionDB: "sessions/whatsmeow.db"},
		Archive: ArchiveConfig{
			DataDir:        ".",
			CommandPrefix:  "!",
			FetchAttempts:  5,
			FetchDelay:     time.Second,
			ReconnectDelay: 4 * time.Second,
			RestartDelay:   5 * time.Second,
			DedupeTTL:      10 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464", Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .yaml or .yml are YAML; everything else is TOML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(string(data), formatFor(path))
}

// Format is a settings file syntax.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Parse decodes settings text, applying defaults and validation.
func Parse(content string, format Format) (*Config, error) {
	expanded := expandEnvVars(content)

	cfg := Default()
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(cfg.Transport.Kind))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportWhatsApp:
		if c.WhatsApp.SessionDB == "" {
			return fmt.Errorf("whatsapp.session_db is required")
		}
	case TransportMatrix:
		if c.Matrix.Homeserver == "" {
			return fmt.Errorf("matrix.homeserver is required")
		}
		u, err := url.Parse(c.Matrix.Homeserver)
		if err != nil {
			return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("matrix.homeserver must use http or https scheme")
		}
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required")
		}
		if c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.access_token is required")
		}
	default:
		return fmt.Errorf("transport.kind must be %q or %q, got %q", TransportWhatsApp, TransportMatrix, c.Transport.Kind)
	}

	if c.Transport.SendRate < 0 {
		return fmt.Errorf("transport.send_rate must not be negative")
	}
	if c.Archive.DataDir == "" {
		return fmt.Errorf("archive.data_dir is required")
	}
	if strings.TrimSpace(c.Archive.CommandPrefix) == "" {
		return fmt.Errorf("archive.command_prefix must not be blank")
	}
	if c.Archive.FetchAttempts < 1 {
		return fmt.Errorf("archive.fetch_attempts must be at least 1")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// LedgerDSN returns the ledger DSN, defaulting to the JSON file in the data dir.
func (c *Config) LedgerDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	return filepath.Join(c.Archive.DataDir, "data", "forwarded.json")
}

// SessionDBPath resolves whatsapp.session_db against the data dir.
func (c *Config) SessionDBPath() string {
	if filepath.IsAbs(c.WhatsApp.SessionDB) {
		return c.WhatsApp.SessionDB
	}
	return filepath.Join(c.Archive.DataDir, c.WhatsApp.SessionDB)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"fetch_delay", cfg.Archive.FetchDelayRaw, &cfg.Archive.FetchDelay},
		{"reconnect_delay", cfg.Archive.ReconnectDelayRaw, &cfg.Archive.ReconnectDelay},
		{"restart_delay", cfg.Archive.RestartDelayRaw, &cfg.Archive.RestartDelay},
		{"dedupe_ttl", cfg.Archive.DedupeTTLRaw, &cfg.Archive.DedupeTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
