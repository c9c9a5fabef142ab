// ABOUTME: Decoded inbound message event handed from transports to the pipeline
// ABOUTME: Carries routing identities, display name, content and quoted context

package message

import (
	"time"

	"github.com/2389/coven-archiver/internal/identity"
)

// Event is one decoded inbound message.
type Event struct {
	// ID is the transport's message identifier, used as the forward dedupe key.
	ID string

	// Chat is the routing identity (direct chat, group or status channel).
	Chat identity.ID

	// ChatKind is set by transports that classify chats themselves.
	// KindUnknown makes the pipeline classify Chat by suffix.
	ChatKind identity.Kind

	// Sender is the author; equals Chat in direct chats.
	Sender identity.ID

	// PushName is the sender's display name as announced by the transport.
	PushName string

	// FromMe is set when the transport knows this account authored the message.
	FromMe bool

	Timestamp time.Time
	Content   Content
	Quoted    *Quote
}

// Quote is the context of a message being replied to.
type Quote struct {
	Sender identity.ID
	Text   string
}
