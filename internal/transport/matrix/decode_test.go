// ABOUTME: Tests for Matrix event decoding and markdown rendering
// ABOUTME: Uses parsed event content built in memory

package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
)

func messageEvent(sender string, content *event.MessageEventContent) *event.Event {
	return &event.Event{
		Type:      event.EventMessage,
		ID:        id.EventID("$abc"),
		RoomID:    id.RoomID("!room:example.org"),
		Sender:    id.UserID(sender),
		Timestamp: 1714564800000,
		Content:   event.Content{Parsed: content},
	}
}

func TestDecodeEvent_Text(t *testing.T) {
	ev, ok := decodeEvent(messageEvent("@alice:example.org", &event.MessageEventContent{
		MsgType: event.MsgText, Body: "hello",
	}), "@bot:example.org")
	require.True(t, ok)

	assert.Equal(t, "$abc", ev.ID)
	assert.Equal(t, identity.ID("!room:example.org"), ev.Chat)
	assert.Equal(t, identity.ID("@alice:example.org"), ev.Sender)
	assert.Equal(t, "alice", ev.PushName)
	assert.False(t, ev.FromMe)
	assert.Equal(t, int64(1714564800000), ev.Timestamp.UnixMilli())
	assert.Equal(t, message.Text{Body: "hello"}, ev.Content)
}

func TestDecodeEvent_FromMe(t *testing.T) {
	ev, ok := decodeEvent(messageEvent("@bot:example.org", &event.MessageEventContent{
		MsgType: event.MsgText, Body: "!ping",
	}), "@bot:example.org")
	require.True(t, ok)
	assert.True(t, ev.FromMe)
}

func TestDecodeEvent_ReplyFallbackStripped(t *testing.T) {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "> <@bob:example.org> original\n\nmy answer",
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: "$orig"},
		},
	}
	evt := messageEvent("@alice:example.org", content)
	ev, ok := decodeEvent(evt, "")
	require.True(t, ok)
	assert.Equal(t, message.Text{Body: "my answer"}, ev.Content)
	assert.Equal(t, "$orig", replyTarget(evt))
}

func TestDecodeEvent_HTMLReplyFallbackStripped(t *testing.T) {
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          "> <@bob:example.org> original\n\nmy answer",
		Format:        event.FormatHTML,
		FormattedBody: "<mx-reply><blockquote>original</blockquote></mx-reply>my answer",
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: "$orig"},
		},
	}
	ev, ok := decodeEvent(messageEvent("@alice:example.org", content), "")
	require.True(t, ok)
	assert.Equal(t, message.Text{Body: "my answer"}, ev.Content)
}

func TestDecodeEvent_QuoteWithoutReplyKept(t *testing.T) {
	body := "> to be or not to be\n\nthat is the question"
	ev, ok := decodeEvent(messageEvent("@alice:example.org", &event.MessageEventContent{
		MsgType: event.MsgText, Body: body,
	}), "")
	require.True(t, ok)
	assert.Equal(t, message.Text{Body: body}, ev.Content)
}

func TestDecodeEvent_EditsSkipped(t *testing.T) {
	_, ok := decodeEvent(messageEvent("@alice:example.org", &event.MessageEventContent{
		MsgType:   event.MsgText,
		Body:      "* fixed",
		RelatesTo: &event.RelatesTo{Type: event.RelReplace, EventID: "$orig"},
	}), "")
	assert.False(t, ok)
}

func TestDecodeEvent_Media(t *testing.T) {
	img := &event.MessageEventContent{
		MsgType:  event.MsgImage,
		Body:     "sunset at the pier",
		FileName: "IMG_001.jpg",
		Info:     &event.FileInfo{MimeType: "image/jpeg"},
	}
	ev, ok := decodeEvent(messageEvent("@alice:example.org", img), "")
	require.True(t, ok)
	assert.Equal(t, message.Image{Media: message.Media{
		MimeType: "image/jpeg", Caption: "sunset at the pier", FileName: "IMG_001.jpg", Handle: img,
	}}, ev.Content)

	file := &event.MessageEventContent{MsgType: event.MsgFile, Body: "report.pdf", Info: &event.FileInfo{MimeType: "application/pdf"}}
	ev, ok = decodeEvent(messageEvent("@alice:example.org", file), "")
	require.True(t, ok)
	m, kind, isMedia := message.MediaOf(ev.Content)
	require.True(t, isMedia)
	assert.Equal(t, message.KindDocument, kind)
	assert.Equal(t, "report.pdf", m.FileName)
	assert.Empty(t, m.Caption)
}

func TestDecodeEvent_Location(t *testing.T) {
	ev, ok := decodeEvent(messageEvent("@alice:example.org", &event.MessageEventContent{
		MsgType: event.MsgLocation, Body: "Monas", GeoURI: "geo:-6.175,106.827;u=20",
	}), "")
	require.True(t, ok)
	assert.Equal(t, message.Location{Latitude: -6.175, Longitude: 106.827, Name: "Monas"}, ev.Content)
}

func TestDecodeEvent_Reaction(t *testing.T) {
	evt := &event.Event{
		Type:   event.EventReaction,
		ID:     "$react",
		RoomID: "!room:example.org",
		Sender: "@alice:example.org",
		Content: event.Content{Parsed: &event.ReactionEventContent{
			RelatesTo: event.RelatesTo{Type: event.RelAnnotation, EventID: "$target", Key: "👍"},
		}},
	}
	ev, ok := decodeEvent(evt, "")
	require.True(t, ok)
	assert.Equal(t, message.Reaction{Emoji: "👍", TargetID: "$target"}, ev.Content)
}

func TestDecodeEvent_Unknown(t *testing.T) {
	ev, ok := decodeEvent(messageEvent("@alice:example.org", &event.MessageEventContent{
		MsgType: event.MessageType("m.server_notice"), Body: "x",
	}), "")
	require.True(t, ok)
	assert.Equal(t, message.Unknown{Type: "m.server_notice"}, ev.Content)

	_, ok = decodeEvent(nil, "")
	assert.False(t, ok)
}

func TestParseGeoURI(t *testing.T) {
	tests := []struct {
		uri      string
		lat, lon float64
		ok       bool
	}{
		{"geo:1.5,2.25", 1.5, 2.25, true},
		{"geo:-6.2,106.8,12;crs=wgs84", -6.2, 106.8, true},
		{"geo:abc,1", 0, 0, false},
		{"geo:1", 0, 0, false},
		{"https://maps", 0, 0, false},
	}
	for _, tt := range tests {
		lat, lon, ok := parseGeoURI(tt.uri)
		assert.Equal(t, tt.ok, ok, tt.uri)
		assert.Equal(t, tt.lat, lat, tt.uri)
		assert.Equal(t, tt.lon, lon, tt.uri)
	}
}

func TestRenderHTML(t *testing.T) {
	_, ok := renderHTML("pong")
	assert.False(t, ok, "plain text needs no formatted body")

	_, ok = renderHTML("a & b")
	assert.False(t, ok)

	html, ok := renderHTML("*BOT PING*\n\n- CPU: 4 cores")
	require.True(t, ok)
	assert.Contains(t, html, "<em>BOT PING</em>")
	assert.Contains(t, html, "<li>CPU: 4 cores</li>")
}
