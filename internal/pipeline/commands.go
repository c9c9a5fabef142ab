// ABOUTME: Administrative chat commands: setgroupbackup, setowner, menu and ping
// ABOUTME: Commands mutate Config synchronously and reply in the chat they came from

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-archiver/internal/botconfig"
	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
)

// command is a recognized administrative command.
type command struct {
	name string
	args []string
}

type commandFunc func(p *Pipeline, ctx context.Context, ev message.Event, chat identity.Kind, cmd command)

var commands = map[string]commandFunc{
	"setgroupbackup": (*Pipeline).cmdSetGroupBackup,
	"setowner":       (*Pipeline).cmdSetOwner,
	"menu":           (*Pipeline).cmdMenu,
	"ping":           (*Pipeline).cmdPing,
}

// parseCommand recognizes "<prefix>name args..." for known names only.
// Unknown names are ordinary text.
func (p *Pipeline) parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, p.prefix) {
		return command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, p.prefix))
	if len(fields) == 0 {
		return command{}, false
	}
	name := strings.ToLower(fields[0])
	if _, ok := commands[name]; !ok {
		return command{}, false
	}
	return command{name: name, args: fields[1:]}, true
}

func (p *Pipeline) runCommand(ctx context.Context, ev message.Event, chat identity.Kind, cmd command) {
	p.logger.Info("command", "name", cmd.name, "chat", ev.Chat, "sender", ev.Sender)
	p.metrics.Command(cmd.name)
	commands[cmd.name](p, ctx, ev, chat, cmd)
}

// saveConfig persists next and adopts it only when the write succeeded.
func (p *Pipeline) saveConfig(next botconfig.Config) error {
	if err := p.store.Save(next); err != nil {
		return err
	}
	p.cfg = next
	return nil
}

func (p *Pipeline) cmdSetGroupBackup(ctx context.Context, ev message.Event, chat identity.Kind, _ command) {
	if chat != identity.KindGroup {
		p.reply(ctx, ev.Chat, "⚠️ Use this command inside the group you want to set as backup.")
		return
	}
	next := p.cfg
	next.BackupDestination = ev.Chat
	if err := p.saveConfig(next); err != nil {
		p.logger.Error("saving backup destination failed", "group", ev.Chat, "error", err)
		p.reply(ctx, ev.Chat, "❌ Could not save the backup group.")
		return
	}
	p.logger.Info("backup destination set", "group", ev.Chat)
	p.reply(ctx, ev.Chat, "✅ This group has been set as backup group.")
}

func (p *Pipeline) cmdSetOwner(ctx context.Context, ev message.Event, _ identity.Kind, _ command) {
	acct := p.account.AccountID()
	if acct.IsZero() {
		p.reply(ctx, ev.Chat, "❌ Unable to determine bot id. Make sure bot is connected.")
		return
	}
	next := p.cfg
	next.Owner = acct
	if err := p.saveConfig(next); err != nil {
		p.logger.Error("saving owner failed", "owner", acct, "error", err)
		p.reply(ctx, ev.Chat, "❌ Could not save the owner.")
		return
	}
	p.logger.Info("owner set", "owner", acct)
	p.reply(ctx, ev.Chat, fmt.Sprintf("✅ Owner set to bot id: %s", acct))
}

func (p *Pipeline) cmdMenu(ctx context.Context, ev message.Event, _ identity.Kind, _ command) {
	p.reply(ctx, ev.Chat, p.menuText())
}

func (p *Pipeline) menuText() string {
	backup := "not set"
	if !p.cfg.BackupDestination.IsZero() {
		backup = p.cfg.BackupDestination.String()
	}
	lines := []string{
		"📘 Coven Archiver",
		"=========================",
		"📌 Commands",
		fmt.Sprintf("• %smenu: show commands", p.prefix),
		fmt.Sprintf("• %sping: system stats", p.prefix),
		fmt.Sprintf("• %ssetowner: set bot as owner (prevents double-forward)", p.prefix),
		fmt.Sprintf("• %ssetgroupbackup: set backup group", p.prefix),
		"",
		"⚙ Features",
		fmt.Sprintf("• Auto-Backup Chat & Media (backup group: %s)", backup),
		"• Anti Double Forward (prevents duplicate forwards)",
		fmt.Sprintf("• Auto Log Upload (every %d messages)", p.cfg.LogThreshold),
		"• Status Saver",
	}
	return strings.Join(lines, "\n")
}

func (p *Pipeline) cmdPing(ctx context.Context, ev message.Event, _ identity.Kind, _ command) {
	started := p.clock.Now()
	if p.probe == nil {
		p.reply(ctx, ev.Chat, "pong")
		return
	}
	stats := p.probe.Collect(ctx, started)
	p.reply(ctx, ev.Chat, stats.Format(p.clock.Now().Sub(started)))
}
