// ABOUTME: Ingestion pipeline turning inbound message events into logs, media and forwards
// ABOUTME: One session object per supervised run; events are processed strictly one at a time

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/2389/coven-archiver/internal/archive"
	"github.com/2389/coven-archiver/internal/botconfig"
	"github.com/2389/coven-archiver/internal/clock"
	"github.com/2389/coven-archiver/internal/dedupe"
	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/ledger"
	"github.com/2389/coven-archiver/internal/media"
	"github.com/2389/coven-archiver/internal/message"
	"github.com/2389/coven-archiver/internal/metrics"
	"github.com/2389/coven-archiver/internal/sysprobe"
	"github.com/2389/coven-archiver/internal/transport"
)

// DefaultCommandPrefix introduces administrative commands.
const DefaultCommandPrefix = "!"

// ErrPanic wraps a panic recovered while processing one message.
var ErrPanic = errors.New("panic while processing message")

// Account reports the identity the transport session is logged in as.
type Account interface {
	AccountID() identity.ID
}

// Options are the collaborators of a Pipeline. Config, Ledger, Archive,
// Fetcher, Sender and Account are required.
type Options struct {
	Config  *botconfig.Store
	Ledger  ledger.Ledger
	Archive *archive.Store
	Fetcher *media.Fetcher
	Sender  transport.Sender
	Account Account

	Clock   clock.Clock
	Metrics *metrics.Recorder
	Probe   *sysprobe.Probe
	Dedupe  *dedupe.Cache
	Logger  *slog.Logger

	CommandPrefix      string
	AcceptSelfCommands bool

	// OnPairing receives pairing challenges (QR payloads).
	OnPairing func(challenge string)
}

// logKey identifies one accumulated log file and its counter.
type logKey struct {
	cat archive.Category
	id  identity.ID
}

// Pipeline holds all state of one transport session. Config and counters
// are only touched from the event path.
type Pipeline struct {
	store   *botconfig.Store
	ledger  ledger.Ledger
	archive *archive.Store
	fetcher *media.Fetcher
	sender  transport.Sender
	account Account
	clock   clock.Clock
	metrics *metrics.Recorder
	probe   *sysprobe.Probe
	dedupe  *dedupe.Cache
	logger  *slog.Logger

	prefix             string
	acceptSelfCommands bool
	onPairing          func(string)

	cfg      botconfig.Config
	counters map[logKey]int
	reload   atomic.Bool
}

// New builds a pipeline and loads the persisted Config.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("pipeline: config store is required")
	case opts.Ledger == nil:
		return nil, fmt.Errorf("pipeline: ledger is required")
	case opts.Archive == nil:
		return nil, fmt.Errorf("pipeline: archive is required")
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("pipeline: media fetcher is required")
	case opts.Sender == nil:
		return nil, fmt.Errorf("pipeline: sender is required")
	case opts.Account == nil:
		return nil, fmt.Errorf("pipeline: account is required")
	}

	p := &Pipeline{
		store:              opts.Config,
		ledger:             opts.Ledger,
		archive:            opts.Archive,
		fetcher:            opts.Fetcher,
		sender:             opts.Sender,
		account:            opts.Account,
		clock:              opts.Clock,
		metrics:            opts.Metrics,
		probe:              opts.Probe,
		dedupe:             opts.Dedupe,
		logger:             opts.Logger,
		prefix:             opts.CommandPrefix,
		acceptSelfCommands: opts.AcceptSelfCommands,
		onPairing:          opts.OnPairing,
		counters:           make(map[logKey]int),
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "pipeline")
	if p.prefix == "" {
		p.prefix = DefaultCommandPrefix
	}
	p.cfg = p.store.Load()
	return p, nil
}

// Config returns the in-memory Config.
func (p *Pipeline) Config() botconfig.Config { return p.cfg }

// Counter returns the pending event count of one log.
func (p *Pipeline) Counter(cat archive.Category, id identity.ID) int {
	return p.counters[logKey{cat: cat, id: id}]
}

// RequestReload asks the pipeline to re-read Config before the next event.
// It is safe to call from any goroutine.
func (p *Pipeline) RequestReload() {
	p.reload.Store(true)
}

func (p *Pipeline) applyReload() {
	if !p.reload.CompareAndSwap(true, false) {
		return
	}
	p.cfg = p.store.Load()
	p.logger.Info("config reloaded",
		"backup", p.cfg.BackupDestination,
		"owner", p.cfg.Owner,
		"threshold", p.cfg.LogThreshold,
	)
}

// ConnectionChanged implements transport.Handler.
func (p *Pipeline) ConnectionChanged(ctx context.Context, u transport.Update) {
	p.logger.Info("connection state changed", "state", u.State.String())
	switch u.State {
	case transport.StatePairing:
		if u.PairingChallenge != "" && p.onPairing != nil {
			p.onPairing(u.PairingChallenge)
		}
	case transport.StateOpen:
		p.metrics.SetConnected(true)
		p.OnConnected(ctx)
	case transport.StateClosed:
		p.metrics.SetConnected(false)
	}
}

// OnConnected re-reads Config, adopts the account as owner when none is
// set, and announces itself to the backup destination.
func (p *Pipeline) OnConnected(ctx context.Context) {
	p.reload.Store(false)
	p.cfg = p.store.Load()

	acct := p.account.AccountID()
	if !acct.IsZero() && p.cfg.Owner.IsZero() {
		next := p.cfg
		next.Owner = acct
		if err := p.store.Save(next); err != nil {
			p.logger.Error("saving default owner failed", "error", err)
		} else {
			p.cfg = next
			p.logger.Info("owner defaulted to account", "owner", acct)
		}
	}

	if !p.cfg.BackupDestination.IsZero() {
		p.reply(ctx, p.cfg.BackupDestination, "✅ Logger bot is online")
	}
}

// MessagesReceived implements transport.Handler. Each event is isolated:
// a failure or panic in one never stops the rest of the batch.
func (p *Pipeline) MessagesReceived(ctx context.Context, batch []message.Event) {
	for i := range batch {
		p.HandleEvent(ctx, batch[i])
	}
}

// HandleEvent processes one event and logs any failure.
func (p *Pipeline) HandleEvent(ctx context.Context, ev message.Event) {
	dedupeKey := ""
	if ev.ID != "" {
		dedupeKey = ev.Chat.String() + "|" + ev.ID
	}
	if p.dedupe.Seen(dedupeKey) {
		p.logger.Debug("dropping redelivered event", "id", ev.ID, "chat", ev.Chat)
		p.metrics.Event(metrics.OutcomeDuplicate)
		return
	}

	if err := p.safeProcess(ctx, ev); err != nil {
		p.dedupe.Forget(dedupeKey)
		p.metrics.Event(metrics.OutcomeFailed)
		p.logger.Error("processing message failed", "id", ev.ID, "chat", ev.Chat, "error", err)
	}
}

func (p *Pipeline) safeProcess(ctx context.Context, ev message.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("recovered panic", "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return p.process(ctx, ev)
}

func (p *Pipeline) process(ctx context.Context, ev message.Event) error {
	p.applyReload()

	if ev.Content == nil {
		ev.Content = message.Unknown{}
	}
	if ev.Sender.IsZero() {
		ev.Sender = ev.Chat
	}
	kind := ev.ChatKind
	if kind == identity.KindUnknown {
		kind = identity.Classify(ev.Chat)
	}
	text := message.ResolveText(ev.Content)

	if p.isSelf(ev) {
		if p.acceptSelfCommands {
			if cmd, ok := p.parseCommand(text); ok {
				p.runCommand(ctx, ev, kind, cmd)
			}
		}
		p.metrics.Event(metrics.OutcomeSelfFiltered)
		return nil
	}

	if cmd, ok := p.parseCommand(text); ok {
		p.runCommand(ctx, ev, kind, cmd)
		p.metrics.Event(metrics.OutcomeCommand)
		return nil
	}

	key := logKeyFor(kind, ev)
	if text != "" {
		if err := p.appendLine(key, formatTextLine(p.timestamp(), ev, text)); err != nil {
			return err
		}
		p.counters[key]++
	}

	if m, mk, ok := message.MediaOf(ev.Content); ok {
		if kind == identity.KindStatus && message.IsVisual(ev.Content) {
			p.handleStatusMedia(ctx, ev, m, mk)
		} else {
			p.handleMedia(ctx, ev, kind, m, mk)
		}
	}

	p.sweep(ctx)
	p.metrics.Event(metrics.OutcomeArchived)
	return nil
}

// isSelf reports whether ev was authored by this account or the owner.
func (p *Pipeline) isSelf(ev message.Event) bool {
	return ev.FromMe || p.isOwnerOrSelf(ev.Sender)
}

func (p *Pipeline) isOwnerOrSelf(id identity.ID) bool {
	return identity.SameUser(id, p.account.AccountID()) || identity.SameUser(id, p.cfg.Owner)
}

// logKeyFor picks the log an event's text and media lines accumulate in:
// groups by group identity, everyone else by the sender's user part.
func logKeyFor(kind identity.Kind, ev message.Event) logKey {
	cat := archive.CategoryFor(kind)
	if kind == identity.KindGroup {
		return logKey{cat: cat, id: ev.Chat}
	}
	return logKey{cat: cat, id: identity.User(ev.Sender)}
}

func (p *Pipeline) appendLine(key logKey, line string) error {
	if err := p.archive.AppendLog(key.cat, key.id, line); err != nil {
		return fmt.Errorf("appending log line: %w", err)
	}
	p.metrics.LogLine(string(key.cat))
	p.logger.Debug("logged", "category", key.cat, "log", key.id, "line", line)
	return nil
}

func (p *Pipeline) timestamp() string {
	return p.clock.Now().UTC().Format(timestampLayout)
}

func (p *Pipeline) reply(ctx context.Context, to identity.ID, text string) {
	if err := p.sender.SendText(ctx, to, text); err != nil {
		p.logger.Warn("sending reply failed", "to", to, "error", err)
	}
}
