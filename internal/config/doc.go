// Package config handles process settings for coven-archiver.
//
// # Overview
//
// Settings are loaded from a TOML or YAML file with environment variable
// expansion. Anything the file leaves unset keeps the value from Default,
// and the result is validated before use.
//
// These settings describe the process. The bot's own mutable state (backup
// group, owner, log threshold) lives in config.json under the data directory
// and is handled by package botconfig.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_ARCHIVER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/archiver.toml
//  3. ~/.config/coven/archiver.toml
//
// Files ending in .yaml or .yml are parsed as YAML, anything else as TOML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	[matrix]
//	access_token = "${MATRIX_ACCESS_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	[archive]
//	fetch_delay = "1s"
//	reconnect_delay = "4s"
//	restart_delay = "5s"
//	dedupe_ttl = "10m"
//
// # Configuration Sections
//
// Transport selection and outbound pacing:
//
//	[transport]
//	kind = "whatsapp"     # or "matrix"
//	send_rate = 1.0       # messages per second, 0 = unlimited
//	send_burst = 3
//
// WhatsApp session store, relative to the data directory:
//
//	[whatsapp]
//	session_db = "sessions/whatsmeow.db"
//
// Matrix account:
//
//	[matrix]
//	homeserver = "https://matrix.org"
//	user_id = "@archiver:matrix.org"
//	access_token = "${MATRIX_ACCESS_TOKEN}"
//
// Pipeline and storage:
//
//	[archive]
//	data_dir = "/var/lib/coven-archiver"
//	command_prefix = "!"
//	accept_self_commands = false
//	fetch_attempts = 5
//
// Forward ledger backend:
//
//	[ledger]
//	dsn = "sqlite:///var/lib/coven-archiver/ledger.db"
//
// Logging and metrics:
//
//	[logging]
//	level = "info"        # debug, info, warn, error
//	format = "text"       # text or json
//
//	[metrics]
//	enabled = true
//	addr = "127.0.0.1:9464"
//	path = "/metrics"
package config
