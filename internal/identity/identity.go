// ABOUTME: Identity keys for users, groups and the status-broadcast channel
// ABOUTME: Classifies chats by suffix and sanitizes identities into storage keys

package identity

import (
	"strings"
)

// StatusBroadcast is the routing identity of the status-broadcast channel.
const StatusBroadcast ID = "status@broadcast"

// groupSuffix marks group routing identities.
const groupSuffix = "@g.us"

// ID is a canonical key for a user, group, or the status-broadcast channel.
type ID string

// String returns the raw identity.
func (id ID) String() string { return string(id) }

// IsZero reports whether the identity is empty.
func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// Kind is the conversation kind of a chat.
type Kind int

const (
	// KindUnknown means the transport did not classify the chat.
	KindUnknown Kind = iota
	KindDirect
	KindGroup
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Classify determines the conversation kind from the routing identity's suffix.
func Classify(chat ID) Kind {
	s := string(chat)
	switch {
	case s == string(StatusBroadcast):
		return KindStatus
	case strings.HasSuffix(s, groupSuffix):
		return KindGroup
	default:
		return KindDirect
	}
}

// User returns the user part of an identity: the text before the server
// separator with any device suffix removed (628123:4@s.whatsapp.net -> 628123).
// Identities with no server part, or whose '@' is a leading sigil, are
// returned unchanged.
func User(id ID) ID {
	s := string(id)
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return id
	}
	user := s[:at]
	if colon := strings.Index(user, ":"); colon > 0 {
		user = user[:colon]
	}
	return ID(user)
}

// SameUser reports whether two identities refer to the same user, ignoring
// device suffixes and server parts. Empty identities never match.
func SameUser(a, b ID) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return User(a) == User(b)
}

// Sanitize converts an identity into a filesystem-safe key by replacing every
// character outside [0-9A-Za-z@._-] with '_'. Empty identities become "unknown".
func Sanitize(id ID) string {
	s := string(id)
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r == '@' || r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
