// ABOUTME: Interactive setup wizard for coven-archiver
// ABOUTME: Prompts for transport and storage settings and writes a TOML config file

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-archiver/internal/config"
)

// initAnswers are the values gathered by the wizard.
type initAnswers struct {
	Transport   string
	DataDir     string
	Homeserver  string
	UserID      string
	AccessToken string
	LedgerDSN   string
	Metrics     bool
}

func runInit(in io.Reader, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	fmt.Fprintln(out, "    Interactive Setup")
	fmt.Fprintln(out, "    -----------------")
	fmt.Fprintln(out)

	configPath := getConfigPath()
	reader := bufio.NewReader(in)

	ask := func(prompt, def string) string {
		green.Fprint(out, "    ▶ ")
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, def)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return def
		}
		return answer
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		yellow.Fprintf(out, "    Config already exists at %s\n", configPath)
		fmt.Fprint(out, "    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(out, "    Aborted.")
			return nil
		}
		fmt.Fprintln(out)
	}

	var a initAnswers
	a.Transport = strings.ToLower(ask("Transport (whatsapp or matrix)", config.TransportWhatsApp))
	a.DataDir = ask("Data directory", config.Default().Archive.DataDir)
	if a.Transport == config.TransportMatrix {
		a.Homeserver = ask("Matrix homeserver URL", "https://matrix.org")
		a.UserID = ask("Matrix user ID (e.g. @archiver:matrix.org)", "")
		a.AccessToken = ask("Matrix access token", "")
	}
	a.LedgerDSN = ask("Forward ledger DSN (empty for data/forwarded.json)", "")
	a.Metrics = strings.HasPrefix(strings.ToLower(ask("Expose Prometheus metrics (y/n)", "n")), "y")

	content := renderConfig(a)
	if _, err := config.Parse(content, config.FormatTOML); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Access tokens live here, so keep it private
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintln(out)
	green.Fprintf(out, "    ✓ Config written to %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "    Next steps:")
	fmt.Fprintln(out, "    1. Run: coven-archiver")
	if a.Transport == config.TransportWhatsApp {
		fmt.Fprintln(out, "    2. Scan the QR code with WhatsApp > Linked devices")
	}
	fmt.Fprintln(out)
	return nil
}

func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# coven-archiver configuration\n# Generated by coven-archiver init\n\n")
	fmt.Fprintf(&b, "[transport]\nkind = %q\n# Outbound messages per second (0 = unlimited)\nsend_rate = 1.0\nsend_burst = 3\n\n", a.Transport)

	if a.Transport == config.TransportMatrix {
		fmt.Fprintf(&b, "[matrix]\nhomeserver = %q\nuser_id = %q\naccess_token = %q\n\n", a.Homeserver, a.UserID, a.AccessToken)
	} else {
		b.WriteString("[whatsapp]\nsession_db = \"sessions/whatsmeow.db\"\n\n")
	}

	fmt.Fprintf(&b, "[archive]\ndata_dir = %q\ncommand_prefix = \"!\"\nfetch_attempts = 5\nfetch_delay = \"1s\"\nreconnect_delay = \"4s\"\nrestart_delay = \"5s\"\ndedupe_ttl = \"10m\"\n\n", a.DataDir)

	if a.LedgerDSN != "" {
		fmt.Fprintf(&b, "[ledger]\ndsn = %q\n\n", a.LedgerDSN)
	}

	b.WriteString("[logging]\nlevel = \"info\"\nformat = \"text\"\n")

	if a.Metrics {
		b.WriteString("\n[metrics]\nenabled = true\naddr = \"127.0.0.1:9464\"\npath = \"/metrics\"\n")
	}
	return b.String()
}
