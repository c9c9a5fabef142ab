// ABOUTME: WhatsApp transport built on whatsmeow with a SQLite device store
// ABOUTME: Pairs by QR, decodes live messages and sends text and document replies

package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
	"github.com/2389/coven-archiver/internal/transport"
)

const eventBuffer = 64

var (
	// ErrUnsupportedHandle is returned by FetchMedia for media this transport did not decode.
	ErrUnsupportedHandle = errors.New("whatsapp: media handle is not downloadable")
	// ErrPairingTimeout ends a session whose QR codes all expired unscanned.
	ErrPairingTimeout = errors.New("whatsapp: pairing timed out")
)

// Options configures a Client.
type Options struct {
	// SessionDB is the SQLite file holding device keys.
	SessionDB string
	Logger    *slog.Logger
}

// Client is a WhatsApp session. Run may be called again after it returns;
// each call opens a fresh connection from the stored device.
type Client struct {
	sessionDB string
	logger    *slog.Logger
	waLogger  waLog.Logger

	conn    atomic.Pointer[whatsmeow.Client]
	mu      sync.RWMutex
	account identity.ID
}

// pairingCode and pairingTimeout are QR channel items relayed onto the event loop.
type (
	pairingCode    string
	pairingTimeout struct{}
)

// New creates a Client. The session directory is created if needed.
func New(opts Options) (*Client, error) {
	if opts.SessionDB == "" {
		return nil, fmt.Errorf("whatsapp: session db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.SessionDB), 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "whatsapp")
	return &Client{
		sessionDB: opts.SessionDB,
		logger:    logger,
		waLogger:  newLogger(logger),
	}, nil
}

// AccountID returns the logged-in account, or "" before the first connection.
func (c *Client) AccountID() identity.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

func (c *Client) setAccount(jid *types.JID) {
	if jid == nil {
		return
	}
	c.mu.Lock()
	c.account = identity.ID(jid.ToNonAD().String())
	c.mu.Unlock()
}

// Run connects and feeds events to h from a single goroutine until the
// connection ends or ctx is cancelled.
func (c *Client) Run(ctx context.Context, h transport.Handler) error {
	db, err := sql.Open("sqlite3", "file:"+c.sessionDB+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("%w: opening session store: %w", transport.ErrStartFailed, err)
	}
	defer db.Close()

	container := sqlstore.NewWithDB(db, "sqlite3", c.waLogger.Sub("Database"))
	if err := container.Upgrade(ctx); err != nil {
		return fmt.Errorf("%w: upgrading session store: %w", transport.ErrStartFailed, err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading device: %w", transport.ErrStartFailed, err)
	}

	cli := whatsmeow.NewClient(device, c.waLogger.Sub("Client"))
	// Reconnects are owned by the supervisor.
	cli.EnableAutoReconnect = false

	stop := make(chan struct{})
	halt := sync.OnceFunc(func() { close(stop) })
	defer halt()
	inbox := make(chan any, eventBuffer)
	push := func(evt any) {
		select {
		case inbox <- evt:
		case <-stop:
		}
	}
	cli.AddEventHandler(push)

	h.ConnectionChanged(ctx, transport.Update{State: transport.StateConnecting})

	if cli.Store.ID == nil {
		qrChan, err := cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("%w: requesting pairing codes: %w", transport.ErrStartFailed, err)
		}
		go func() {
			for item := range qrChan {
				switch item.Event {
				case whatsmeow.QRChannelEventCode:
					push(pairingCode(item.Code))
				case "timeout":
					push(pairingTimeout{})
				case "success":
				default:
					c.logger.Warn("pairing event", "event", item.Event, "error", item.Error)
				}
			}
		}()
	} else {
		c.setAccount(cli.Store.ID)
	}

	if err := cli.Connect(); err != nil {
		return fmt.Errorf("%w: connecting: %w", transport.ErrStartFailed, err)
	}
	c.conn.Store(cli)
	defer func() {
		halt()
		c.conn.CompareAndSwap(cli, nil)
		cli.Disconnect()
	}()

	closed := func() {
		h.ConnectionChanged(ctx, transport.Update{State: transport.StateClosed})
	}

	for {
		select {
		case <-ctx.Done():
			closed()
			return ctx.Err()
		case evt := <-inbox:
			switch v := evt.(type) {
			case pairingCode:
				h.ConnectionChanged(ctx, transport.Update{State: transport.StatePairing, PairingChallenge: string(v)})
			case pairingTimeout:
				closed()
				return fmt.Errorf("%w: %w", transport.ErrDisconnected, ErrPairingTimeout)
			case *events.PairSuccess:
				c.logger.Info("paired", "jid", v.ID.String(), "platform", v.Platform)
			case *events.Connected:
				c.setAccount(cli.Store.ID)
				c.logger.Info("connected", "account", c.AccountID())
				h.ConnectionChanged(ctx, transport.Update{State: transport.StateOpen})
			case *events.Message:
				if ev, ok := decodeEvent(v); ok {
					h.MessagesReceived(ctx, []message.Event{ev})
				}
			case *events.Disconnected:
				closed()
				return transport.ErrDisconnected
			case *events.StreamReplaced:
				closed()
				return fmt.Errorf("%w: stream replaced", transport.ErrDisconnected)
			case *events.ConnectFailure:
				closed()
				return fmt.Errorf("%w: connect failure %v", transport.ErrDisconnected, v.Reason)
			case *events.LoggedOut:
				closed()
				c.mu.Lock()
				c.account = ""
				c.mu.Unlock()
				return fmt.Errorf("%w: %v", transport.ErrLoggedOut, v.Reason)
			case *events.KeepAliveTimeout:
				c.logger.Warn("keepalive timeout", "errors", v.ErrorCount)
			}
		}
	}
}

func (c *Client) connected() (*whatsmeow.Client, error) {
	cli := c.conn.Load()
	if cli == nil || !cli.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	return cli, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to identity.ID, text string) error {
	cli, err := c.connected()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(to.String())
	if err != nil {
		return fmt.Errorf("parsing recipient %q: %w", to, err)
	}
	if _, err := cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		return fmt.Errorf("sending text: %w", err)
	}
	return nil
}

// SendDocument uploads doc and sends it as a document message.
func (c *Client) SendDocument(ctx context.Context, to identity.ID, doc transport.Document) error {
	cli, err := c.connected()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(to.String())
	if err != nil {
		return fmt.Errorf("parsing recipient %q: %w", to, err)
	}
	up, err := cli.Upload(ctx, doc.Data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("uploading document: %w", err)
	}
	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		Mimetype:      proto.String(doc.MimeType),
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		FileName:      proto.String(doc.FileName),
		Title:         proto.String(doc.FileName),
	}}
	if _, err := cli.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending document: %w", err)
	}
	return nil
}

// FetchMedia downloads and decrypts a media payload decoded by this transport.
func (c *Client) FetchMedia(ctx context.Context, m message.Media) ([]byte, error) {
	handle, ok := m.Handle.(whatsmeow.DownloadableMessage)
	if !ok || handle == nil {
		return nil, ErrUnsupportedHandle
	}
	cli, err := c.connected()
	if err != nil {
		return nil, err
	}
	data, err := cli.Download(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	return data, nil
}
