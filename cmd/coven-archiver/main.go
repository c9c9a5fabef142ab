// ABOUTME: Entry point for coven-archiver
// ABOUTME: Loads settings, prints the banner and runs the supervised archiving session

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-archiver/internal/config"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │   ┏━╸┏━┓╻ ╻┏━╸┏┓╻                │
    │   ┃  ┃ ┃┃┏┛┣╸ ┃┗┫   archiver     │
    │   ┗━╸┗━┛┗┛ ┗━╸╹ ╹                │
    │                                  │
    │      chat logs, media, backup    │
    │                                  │
    ╰──────────────────────────────────╯
`

const usage = `Usage: coven-archiver [command]

Commands:
  (none)    Run the archiver
  init      Write a configuration file interactively
  help      Show this help

Environment:
  COVEN_ARCHIVER_CONFIG   Path to the settings file (TOML or YAML)
`

// getConfigPath returns the path to the archiver config file.
// Priority: COVEN_ARCHIVER_CONFIG env var > XDG_CONFIG_HOME/coven/archiver.toml > ~/.config/coven/archiver.toml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_ARCHIVER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "archiver.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "archiver.toml")
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			if err := runInit(os.Stdin, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "help", "-h", "--help":
			fmt.Print(usage)
			return
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n%s", os.Args[1], usage)
			os.Exit(2)
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env next to the binary is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Transport:  %s\n", cfg.Transport.Kind)
	green.Print("    ▶ ")
	fmt.Printf("Data dir:   %s\n", cfg.Archive.DataDir)
	green.Print("    ▶ ")
	fmt.Printf("Ledger:     %s\n", cfg.LedgerDSN())
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:    http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting archiver")
	return serve(ctx, cfg, logger)
}

// loadConfig reads path, falling back to defaults when the file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func setupLogger(level, format string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
