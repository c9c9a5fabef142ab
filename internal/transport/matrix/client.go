// ABOUTME: Matrix transport built on mautrix-go using an access token
// ABOUTME: Syncs joined rooms, classifies them by membership and sends text and files

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
	"github.com/2389/coven-archiver/internal/transport"
)

// networkTimeout bounds lookups made while handling one event.
const networkTimeout = 10 * time.Second

// ErrUnsupportedHandle is returned by FetchMedia for media this transport did not decode.
var ErrUnsupportedHandle = errors.New("matrix: media handle is not downloadable")

// Options configures a Client.
type Options struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Logger      *slog.Logger
}

// Client is a Matrix session. Rooms with more than two joined members are
// reported as groups.
type Client struct {
	matrix *mautrix.Client
	logger *slog.Logger

	mu      sync.RWMutex
	account identity.ID

	// kinds caches room classification; only touched from the sync goroutine.
	kinds map[id.RoomID]identity.Kind
}

// New creates a Client. No network traffic happens until Run.
func New(opts Options) (*Client, error) {
	cli, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		matrix:  cli,
		logger:  logger.With("component", "matrix"),
		account: identity.ID(opts.UserID),
	}, nil
}

// AccountID returns the logged-in user.
func (c *Client) AccountID() identity.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// Run syncs until ctx is cancelled or the sync loop fails. Each call
// installs a fresh syncer so handlers never stack up across restarts.
func (c *Client) Run(ctx context.Context, h transport.Handler) error {
	h.ConnectionChanged(ctx, transport.Update{State: transport.StateConnecting})

	who, err := c.matrix.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("%w: whoami: %w", transport.ErrStartFailed, err)
	}
	c.mu.Lock()
	c.account = identity.ID(who.UserID.String())
	c.mu.Unlock()
	c.matrix.UserID = who.UserID
	c.kinds = make(map[id.RoomID]identity.Kind)

	syncer := mautrix.NewDefaultSyncer()
	syncer.OnSync(c.matrix.DontProcessOldEvents)
	onMessage := func(ctx context.Context, evt *event.Event) { c.handleEvent(ctx, h, evt) }
	syncer.OnEventType(event.EventMessage, onMessage)
	syncer.OnEventType(event.EventSticker, onMessage)
	syncer.OnEventType(event.EventReaction, onMessage)
	syncer.OnEventType(event.StateMember, c.handleMembership)
	c.matrix.Syncer = syncer

	c.logger.Info("connecting to matrix homeserver", "user_id", who.UserID)
	h.ConnectionChanged(ctx, transport.Update{State: transport.StateOpen})

	err = c.matrix.SyncWithContext(ctx)
	h.ConnectionChanged(ctx, transport.Update{State: transport.StateClosed})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return transport.ErrDisconnected
	}
	return fmt.Errorf("%w: matrix sync failed: %w", transport.ErrDisconnected, err)
}

func (c *Client) handleEvent(ctx context.Context, h transport.Handler, evt *event.Event) {
	ev, ok := decodeEvent(evt, c.AccountID())
	if !ok {
		return
	}
	ev.ChatKind = c.roomKind(ctx, evt.RoomID)
	if target := replyTarget(evt); target != "" {
		ev.Quoted = c.quote(ctx, evt.RoomID, id.EventID(target))
	}
	h.MessagesReceived(ctx, []message.Event{ev})
}

// handleMembership joins rooms the account is invited to and forgets the
// cached kind of any room whose membership changed.
func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if evt.GetStateKey() != c.AccountID().String() {
		// Member count decides the room kind.
		switch member.Membership {
		case event.MembershipJoin, event.MembershipLeave, event.MembershipBan:
			delete(c.kinds, evt.RoomID)
		}
		return
	}
	switch member.Membership {
	case event.MembershipInvite:
		ctx, cancel := context.WithTimeout(ctx, networkTimeout)
		defer cancel()
		if _, err := c.matrix.JoinRoomByID(ctx, evt.RoomID); err != nil {
			c.logger.Warn("joining invited room failed", "room", evt.RoomID, "error", err)
			return
		}
		c.logger.Info("joined room", "room", evt.RoomID, "inviter", evt.Sender)
	case event.MembershipJoin, event.MembershipLeave:
		delete(c.kinds, evt.RoomID)
	}
}

func (c *Client) roomKind(ctx context.Context, room id.RoomID) identity.Kind {
	if kind, ok := c.kinds[room]; ok {
		return kind
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	resp, err := c.matrix.JoinedMembers(ctx, room)
	if err != nil {
		c.logger.Warn("listing room members failed", "room", room, "error", err)
		return identity.KindDirect
	}
	kind := identity.KindDirect
	if len(resp.Joined) > 2 {
		kind = identity.KindGroup
	}
	c.kinds[room] = kind
	return kind
}

func (c *Client) quote(ctx context.Context, room id.RoomID, target id.EventID) *message.Quote {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	evt, err := c.matrix.GetEvent(ctx, room, target)
	if err != nil {
		c.logger.Debug("fetching replied event failed", "room", room, "event", target, "error", err)
		return nil
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
		return nil
	}
	quoted, ok := decodeEvent(evt, "")
	if !ok {
		return nil
	}
	text := message.ResolveText(quoted.Content)
	if text == "" {
		text = "<" + quoted.Content.Kind().String() + ">"
	}
	return &message.Quote{Sender: quoted.Sender, Text: text}
}

// SendText sends a notice. Markdown is rendered to HTML when it changes anything.
func (c *Client) SendText(ctx context.Context, to identity.ID, text string) error {
	content := &event.MessageEventContent{MsgType: event.MsgNotice, Body: text}
	if html, ok := renderHTML(text); ok {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	if _, err := c.matrix.SendMessageEvent(ctx, id.RoomID(to), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending text: %w", err)
	}
	return nil
}

// SendDocument uploads doc to the media repository and posts it as a file.
func (c *Client) SendDocument(ctx context.Context, to identity.ID, doc transport.Document) error {
	up, err := c.matrix.UploadBytes(ctx, doc.Data, doc.MimeType)
	if err != nil {
		return fmt.Errorf("uploading document: %w", err)
	}
	content := &event.MessageEventContent{
		MsgType:  event.MsgFile,
		Body:     doc.FileName,
		FileName: doc.FileName,
		URL:      up.ContentURI.CUString(),
		Info:     &event.FileInfo{MimeType: doc.MimeType, Size: len(doc.Data)},
	}
	if _, err := c.matrix.SendMessageEvent(ctx, id.RoomID(to), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending document: %w", err)
	}
	return nil
}

// FetchMedia downloads a media payload, decrypting it when the room is encrypted.
func (c *Client) FetchMedia(ctx context.Context, m message.Media) ([]byte, error) {
	content, ok := m.Handle.(*event.MessageEventContent)
	if !ok || content == nil {
		return nil, ErrUnsupportedHandle
	}
	uri := content.URL
	if content.File != nil {
		uri = content.File.URL
	}
	mxc, err := uri.Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing media uri: %w", err)
	}
	data, err := c.matrix.DownloadBytes(ctx, mxc)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	if content.File != nil {
		if err := content.File.PrepareForDecryption(); err != nil {
			return nil, fmt.Errorf("preparing media decryption: %w", err)
		}
		if err := content.File.DecryptInPlace(data); err != nil {
			return nil, fmt.Errorf("decrypting media: %w", err)
		}
	}
	return data, nil
}
