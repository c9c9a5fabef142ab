// ABOUTME: Contract between messaging transports and the ingestion pipeline
// ABOUTME: Connection updates and message batches flow in; text, documents and fetches flow out

package transport

import (
	"context"
	"errors"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
)

var (
	// ErrDisconnected ends a session after the connection dropped. The
	// supervisor restarts the session.
	ErrDisconnected = errors.New("transport disconnected")
	// ErrLoggedOut ends a session whose credentials were revoked. Restarting
	// falls back to pairing.
	ErrLoggedOut = errors.New("transport logged out")
	// ErrStartFailed marks errors raised before a session was up, such as
	// an unreadable session store.
	ErrStartFailed = errors.New("transport start failed")
	// ErrNotConnected is returned by sends issued while no connection is open.
	ErrNotConnected = errors.New("transport not connected")
)

// State is the connection state reported by a transport.
type State int

const (
	StateConnecting State = iota
	StatePairing
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePairing:
		return "pairing"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Update is a connection state change. PairingChallenge carries the QR
// payload while State is StatePairing.
type Update struct {
	State            State
	PairingChallenge string
}

// Handler consumes transport events. A transport calls it from a single
// goroutine, so batches never overlap.
type Handler interface {
	ConnectionChanged(ctx context.Context, u Update)
	MessagesReceived(ctx context.Context, batch []message.Event)
}

// Document is an outbound file attachment.
type Document struct {
	FileName string
	MimeType string
	Data     []byte
}

// Sender is the outbound half of a transport.
type Sender interface {
	SendText(ctx context.Context, to identity.ID, text string) error
	SendDocument(ctx context.Context, to identity.ID, doc Document) error
}

// Client is a messaging transport session.
type Client interface {
	Sender
	// Run connects and delivers events to h until ctx is done or the
	// connection ends. A dropped connection returns ErrDisconnected.
	Run(ctx context.Context, h Handler) error
	// FetchMedia downloads one media payload.
	FetchMedia(ctx context.Context, m message.Media) ([]byte, error)
	// AccountID is the identity this session is logged in as, or "" before login.
	AccountID() identity.ID
}
