// ABOUTME: Media steps of the pipeline: fetch, store, log and forward
// ABOUTME: Status images and videos go to the status vault; everything else to users or groups

package pipeline

import (
	"context"
	"path/filepath"

	"github.com/2389/coven-archiver/internal/archive"
	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/media"
	"github.com/2389/coven-archiver/internal/message"
	"github.com/2389/coven-archiver/internal/transport"
)

const statusPrefix = "status"

// handleStatusMedia saves a status image or video under the poster's
// status directory and forwards it.
func (p *Pipeline) handleStatusMedia(ctx context.Context, ev message.Event, m message.Media, kind message.Kind) {
	data, ok := p.fetch(ctx, ev, m, kind)
	if !ok {
		return
	}
	poster := identity.User(ev.Sender)
	path, err := p.archive.SaveMedia(archive.Status, poster, statusPrefix, media.ExtensionFromMIME(m.MimeType), data)
	if err != nil {
		p.logger.Warn("saving status media failed", "id", ev.ID, "sender", ev.Sender, "error", err)
		return
	}
	p.metrics.MediaSaved(string(archive.Status), kind.String())

	key := logKey{cat: archive.Status, id: poster}
	if err := p.appendLine(key, formatStatusLine(p.timestamp(), ev.Sender, path)); err != nil {
		p.logger.Warn("logging status save failed", "path", path, "error", err)
	}

	p.forward(ctx, forwardStatus, ev.ID, ev.Sender, document(path, m.MimeType, data))
}

// handleMedia saves any other media under the chat's category, logs the
// save into the chat's log, counts it and forwards it.
func (p *Pipeline) handleMedia(ctx context.Context, ev message.Event, chat identity.Kind, m message.Media, kind message.Kind) {
	data, ok := p.fetch(ctx, ev, m, kind)
	if !ok {
		return
	}

	cat := archive.Users
	owner := identity.User(ev.Sender)
	if chat == identity.KindGroup {
		cat = archive.Groups
		owner = identity.User(ev.Chat)
	}
	path, err := p.archive.SaveMedia(cat, owner, kind.String(), media.ExtensionFromMIME(m.MimeType), data)
	if err != nil {
		p.logger.Warn("saving media failed", "id", ev.ID, "kind", kind, "error", err)
		return
	}
	p.metrics.MediaSaved(string(cat), kind.String())

	key := logKeyFor(chat, ev)
	if key.cat == archive.Status {
		// Non-visual status media is archived like a direct message.
		key.cat = archive.Users
	}
	if err := p.appendLine(key, formatMediaLine(p.timestamp(), kind, ev.Sender, path)); err != nil {
		p.logger.Warn("logging media save failed", "path", path, "error", err)
	} else {
		p.counters[key]++
	}

	p.forward(ctx, forwardMedia, ev.ID, ev.Sender, document(path, m.MimeType, data))
}

func (p *Pipeline) fetch(ctx context.Context, ev message.Event, m message.Media, kind message.Kind) ([]byte, bool) {
	data, err := p.fetcher.Fetch(ctx, m)
	if err != nil {
		p.metrics.FetchFailed()
		p.logger.Warn("media unavailable", "id", ev.ID, "kind", kind, "chat", ev.Chat, "error", err)
		return nil, false
	}
	return data, true
}

func document(path, mimeType string, data []byte) transport.Document {
	if mimeType == "" {
		mimeType = media.DefaultMIME
	}
	return transport.Document{FileName: filepath.Base(path), MimeType: mimeType, Data: data}
}
