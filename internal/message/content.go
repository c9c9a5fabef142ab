// ABOUTME: Tagged union of message content kinds delivered by transports
// ABOUTME: Sealed Content interface with text resolution and media extraction helpers

package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the content variant of a message.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindImage
	KindVideo
	KindAudio
	KindDocument
	KindSticker
	KindViewOnce
	KindReaction
	KindLocation
	KindContact
	KindPoll
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindText:     "text",
	KindImage:    "image",
	KindVideo:    "video",
	KindAudio:    "audio",
	KindDocument: "document",
	KindSticker:  "sticker",
	KindViewOnce: "viewonce",
	KindReaction: "reaction",
	KindLocation: "location",
	KindContact:  "contact",
	KindPoll:     "poll",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Content is implemented only by the variant types in this package.
type Content interface {
	Kind() Kind
	sealed()
}

// Media carries what is needed to fetch and store a binary payload.
// Handle is opaque to everything but the transport that produced it.
type Media struct {
	MimeType string
	Caption  string
	FileName string
	Handle   any
}

type (
	Text struct {
		Body string
	}
	Image    struct{ Media }
	Video    struct{ Media }
	Audio    struct{ Media }
	Document struct{ Media }
	Sticker  struct{ Media }
	// ViewOnce wraps media that the sender marked as viewable once.
	ViewOnce struct {
		Inner Content
	}
	Reaction struct {
		Emoji    string
		TargetID string
	}
	Location struct {
		Latitude  float64
		Longitude float64
		Name      string
		Address   string
	}
	Contact struct {
		DisplayName string
		VCard       string
	}
	Poll struct {
		Question string
		Options  []string
	}
	// Unknown is any payload the transport could not map. It is inert.
	Unknown struct {
		Type string
	}
)

func (Text) Kind() Kind     { return KindText }
func (Image) Kind() Kind    { return KindImage }
func (Video) Kind() Kind    { return KindVideo }
func (Audio) Kind() Kind    { return KindAudio }
func (Document) Kind() Kind { return KindDocument }
func (Sticker) Kind() Kind  { return KindSticker }
func (ViewOnce) Kind() Kind { return KindViewOnce }
func (Reaction) Kind() Kind { return KindReaction }
func (Location) Kind() Kind { return KindLocation }
func (Contact) Kind() Kind  { return KindContact }
func (Poll) Kind() Kind     { return KindPoll }
func (Unknown) Kind() Kind  { return KindUnknown }

func (Text) sealed()     {}
func (Image) sealed()    {}
func (Video) sealed()    {}
func (Audio) sealed()    {}
func (Document) sealed() {}
func (Sticker) sealed()  {}
func (ViewOnce) sealed() {}
func (Reaction) sealed() {}
func (Location) sealed() {}
func (Contact) sealed()  {}
func (Poll) sealed()     {}
func (Unknown) sealed()  {}

// KindOf returns the kind of c, treating nil as unknown.
func KindOf(c Content) Kind {
	if c == nil {
		return KindUnknown
	}
	return c.Kind()
}

// ResolveText returns the loggable text of a content value. Media without a
// caption, stickers, audio and unknown payloads resolve to "".
func ResolveText(c Content) string {
	switch v := c.(type) {
	case Text:
		return v.Body
	case Image:
		return v.Caption
	case Video:
		return v.Caption
	case Document:
		return v.Caption
	case Audio, Sticker:
		return ""
	case ViewOnce:
		return ResolveText(v.Inner)
	case Reaction:
		if v.Emoji == "" {
			return ""
		}
		return fmt.Sprintf("reacted %s to %s", v.Emoji, v.TargetID)
	case Location:
		s := "location: " + strconv.FormatFloat(v.Latitude, 'f', 6, 64) + "," + strconv.FormatFloat(v.Longitude, 'f', 6, 64)
		if v.Name != "" {
			s += " " + v.Name
		}
		if v.Address != "" {
			s += " (" + v.Address + ")"
		}
		return s
	case Contact:
		if v.DisplayName == "" {
			return "contact"
		}
		return "contact: " + v.DisplayName
	case Poll:
		s := "poll: " + v.Question
		if len(v.Options) > 0 {
			s += " [" + strings.Join(v.Options, " | ") + "]"
		}
		return s
	default:
		return ""
	}
}

// MediaOf returns the media attachment of a media-bearing content value.
// View-once wrappers are unwrapped; the reported kind stays KindViewOnce so
// callers can name stored files after the wrapper.
func MediaOf(c Content) (Media, Kind, bool) {
	switch v := c.(type) {
	case Image:
		return v.Media, KindImage, true
	case Video:
		return v.Media, KindVideo, true
	case Audio:
		return v.Media, KindAudio, true
	case Document:
		return v.Media, KindDocument, true
	case Sticker:
		return v.Media, KindSticker, true
	case ViewOnce:
		m, _, ok := MediaOf(v.Inner)
		return m, KindViewOnce, ok
	default:
		return Media{}, KindOf(c), false
	}
}

// IsVisual reports whether c is an image or a video, the only kinds saved
// from the status-broadcast channel.
func IsVisual(c Content) bool {
	switch c.(type) {
	case Image, Video:
		return true
	default:
		return false
	}
}
