// ABOUTME: Conversion of Matrix room events into pipeline events
// ABOUTME: Maps msgtypes onto the message content union and renders outbound markdown

package matrix

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix/event"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
)

// decodeEvent converts a message, sticker or reaction event. It reports
// false for events that carry no usable content.
func decodeEvent(evt *event.Event, self identity.ID) (message.Event, bool) {
	if evt == nil {
		return message.Event{}, false
	}
	ev := message.Event{
		ID:        evt.ID.String(),
		Chat:      identity.ID(evt.RoomID.String()),
		Sender:    identity.ID(evt.Sender.String()),
		PushName:  evt.Sender.Localpart(),
		Timestamp: time.UnixMilli(evt.Timestamp).UTC(),
	}
	ev.FromMe = !self.IsZero() && ev.Sender == self

	switch evt.Type {
	case event.EventReaction:
		r := evt.Content.AsReaction()
		ev.Content = message.Reaction{Emoji: r.RelatesTo.Key, TargetID: r.RelatesTo.EventID.String()}
		return ev, true
	case event.EventSticker:
		c := evt.Content.AsMessage()
		ev.Content = message.Sticker{Media: mediaOf(c)}
		return ev, true
	case event.EventMessage:
		c, ok := evt.Content.Parsed.(*event.MessageEventContent)
		if !ok {
			return message.Event{}, false
		}
		if c.RelatesTo != nil && c.RelatesTo.Type == event.RelReplace {
			// Edits repeat an earlier event.
			return message.Event{}, false
		}
		ev.Content = decodeContent(c)
		return ev, true
	default:
		return message.Event{}, false
	}
}

// replyTarget returns the event a message replies to, if any.
func replyTarget(evt *event.Event) string {
	c, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || c.RelatesTo == nil || c.RelatesTo.InReplyTo == nil {
		return ""
	}
	return c.RelatesTo.InReplyTo.EventID.String()
}

func decodeContent(c *event.MessageEventContent) message.Content {
	switch c.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
		stripReplyFallback(c)
		return message.Text{Body: c.Body}
	case event.MsgImage:
		return message.Image{Media: mediaOf(c)}
	case event.MsgVideo:
		return message.Video{Media: mediaOf(c)}
	case event.MsgAudio:
		return message.Audio{Media: mediaOf(c)}
	case event.MsgFile:
		return message.Document{Media: mediaOf(c)}
	case event.MsgLocation:
		lat, lon, ok := parseGeoURI(c.GeoURI)
		if !ok {
			return message.Unknown{Type: string(c.MsgType)}
		}
		return message.Location{Latitude: lat, Longitude: lon, Name: c.Body}
	default:
		return message.Unknown{Type: string(c.MsgType)}
	}
}

// stripReplyFallback drops the quoted prefix clients prepend to replies.
// The quote is carried separately, so leaving it would log it twice.
func stripReplyFallback(c *event.MessageEventContent) {
	if c.RelatesTo.GetReplyTo() == "" {
		return
	}
	if c.Format == event.FormatHTML {
		c.RemoveReplyFallback()
		return
	}
	c.Body = event.TrimReplyFallbackText(c.Body)
}

// mediaOf keeps the event content as the download handle. A body that
// differs from the file name is a caption.
func mediaOf(c *event.MessageEventContent) message.Media {
	m := message.Media{
		MimeType: c.GetInfo().MimeType,
		FileName: c.FileName,
		Handle:   c,
	}
	if c.FileName != "" && c.Body != c.FileName {
		m.Caption = c.Body
	} else if m.FileName == "" {
		m.FileName = c.Body
	}
	return m
}

// parseGeoURI reads "geo:lat,lon[,alt][;params]".
func parseGeoURI(uri string) (float64, float64, bool) {
	rest, ok := strings.CutPrefix(uri, "geo:")
	if !ok {
		return 0, 0, false
	}
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		rest = rest[:i]
	}
	parts := strings.Split(rest, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// renderHTML converts markdown text to HTML. It reports false when the
// result adds nothing over the plain body.
func renderHTML(text string) (string, bool) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", false
	}
	html := strings.TrimSpace(buf.String())
	if html == "" || html == "<p>"+htmlEscaper.Replace(text)+"</p>" {
		return "", false
	}
	return html, true
}
