// ABOUTME: Forward gate and threshold sweep towards the backup destination
// ABOUTME: Keys are recorded in the ledger only after a successful send

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/metrics"
	"github.com/2389/coven-archiver/internal/transport"
)

// Forward kinds, used in logs and metrics.
const (
	forwardMedia  = "media"
	forwardStatus = "status"
	forwardLog    = "log"
)

const logMimeType = "text/plain"

// forward sends doc to the backup destination iff one is configured, key is
// non-empty and not yet in the ledger, and author is not the owner or this
// account. It reports whether the document was sent.
func (p *Pipeline) forward(ctx context.Context, kind, key string, author identity.ID, doc transport.Document) bool {
	dest := p.cfg.BackupDestination
	if dest.IsZero() {
		return false
	}
	if key == "" {
		p.skip(kind, key, "no dedupe key")
		return false
	}
	if p.isOwnerOrSelf(author) {
		p.skip(kind, key, "authored by owner")
		return false
	}
	seen, err := p.ledger.Has(ctx, key)
	if err != nil {
		p.logger.Warn("ledger lookup failed, not forwarding", "kind", kind, "key", key, "error", err)
		p.metrics.Forward(kind, metrics.ForwardFailed)
		return false
	}
	if seen {
		p.skip(kind, key, "already forwarded")
		return false
	}

	if err := p.sender.SendDocument(ctx, dest, doc); err != nil {
		p.logger.Warn("forward failed", "kind", kind, "key", key, "to", dest, "error", err)
		p.metrics.Forward(kind, metrics.ForwardFailed)
		return false
	}
	if err := p.ledger.Record(ctx, key); err != nil {
		p.logger.Error("recording forward failed; it may repeat after restart", "kind", kind, "key", key, "error", err)
	}
	p.metrics.Forward(kind, metrics.ForwardSent)
	p.logger.Info("forwarded to backup destination", "kind", kind, "key", key, "file", doc.FileName)
	return true
}

func (p *Pipeline) skip(kind, key, reason string) {
	p.metrics.Forward(kind, metrics.ForwardSkipped)
	p.logger.Info("forward skipped", "kind", kind, "key", key, "reason", reason)
}

// sweep flushes every log whose counter reached the threshold and resets
// those counters whether or not anything was sent.
func (p *Pipeline) sweep(ctx context.Context) {
	threshold := p.cfg.LogThreshold
	if threshold < 1 {
		threshold = 1
	}

	due := make([]logKey, 0)
	for key, n := range p.counters {
		if n >= threshold {
			due = append(due, key)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].cat != due[j].cat {
			return due[i].cat < due[j].cat
		}
		return due[i].id < due[j].id
	})

	for _, key := range due {
		if err := p.flushLog(ctx, key); err != nil {
			p.logger.Warn("sending log failed", "category", key.cat, "log", key.id, "error", err)
		}
		delete(p.counters, key)
	}
}

func (p *Pipeline) flushLog(ctx context.Context, key logKey) error {
	if p.cfg.BackupDestination.IsZero() {
		return nil
	}
	data, mtime, err := p.archive.ReadLog(key.cat, key.id)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	base := filepath.Base(p.archive.LogPath(key.cat, key.id))
	marker := fmt.Sprintf("%s:%d", base, mtime.UnixMilli())

	p.forward(ctx, forwardLog, marker, key.id, transport.Document{
		FileName: base,
		MimeType: logMimeType,
		Data:     data,
	})
	return nil
}
