// ABOUTME: Conversion of whatsmeow message events into pipeline events
// ABOUTME: Maps the waE2E payload variants onto the message content union

package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
)

// decodeEvent converts evt. It reports false for events with no payload,
// such as protocol-only stanzas.
func decodeEvent(evt *events.Message) (message.Event, bool) {
	if evt == nil || evt.Message == nil {
		return message.Event{}, false
	}
	info := evt.Info
	ev := message.Event{
		ID:        string(info.ID),
		Chat:      identity.ID(info.Chat.String()),
		Sender:    identity.ID(info.Sender.ToNonAD().String()),
		PushName:  info.PushName,
		FromMe:    info.IsFromMe,
		Timestamp: info.Timestamp,
	}
	if info.Sender.IsEmpty() {
		ev.Sender = ev.Chat
	}

	content, ctxInfo := decodeContent(evt.Message)
	if evt.IsViewOnce || evt.IsViewOnceV2 || evt.IsViewOnceV2Extension {
		if _, _, ok := message.MediaOf(content); ok {
			content = message.ViewOnce{Inner: content}
		}
	}
	ev.Content = content
	ev.Quoted = decodeQuote(ctxInfo)
	return ev, true
}

// decodeContent picks the first populated payload. The returned ContextInfo
// carries reply context when the payload has one.
func decodeContent(msg *waE2E.Message) (message.Content, *waE2E.ContextInfo) {
	switch {
	case msg.GetConversation() != "":
		return message.Text{Body: msg.GetConversation()}, nil
	case msg.GetExtendedTextMessage() != nil:
		m := msg.GetExtendedTextMessage()
		return message.Text{Body: m.GetText()}, m.GetContextInfo()
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		return message.Image{Media: message.Media{
			MimeType: m.GetMimetype(), Caption: m.GetCaption(), Handle: m,
		}}, m.GetContextInfo()
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		return message.Video{Media: message.Media{
			MimeType: m.GetMimetype(), Caption: m.GetCaption(), Handle: m,
		}}, m.GetContextInfo()
	case msg.GetAudioMessage() != nil:
		m := msg.GetAudioMessage()
		return message.Audio{Media: message.Media{MimeType: m.GetMimetype(), Handle: m}}, m.GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		return message.Document{Media: message.Media{
			MimeType: m.GetMimetype(), Caption: m.GetCaption(), FileName: m.GetFileName(), Handle: m,
		}}, m.GetContextInfo()
	case msg.GetStickerMessage() != nil:
		m := msg.GetStickerMessage()
		return message.Sticker{Media: message.Media{MimeType: m.GetMimetype(), Handle: m}}, m.GetContextInfo()
	case msg.GetReactionMessage() != nil:
		m := msg.GetReactionMessage()
		return message.Reaction{Emoji: m.GetText(), TargetID: m.GetKey().GetID()}, nil
	case msg.GetLocationMessage() != nil:
		m := msg.GetLocationMessage()
		return message.Location{
			Latitude:  m.GetDegreesLatitude(),
			Longitude: m.GetDegreesLongitude(),
			Name:      m.GetName(),
			Address:   m.GetAddress(),
		}, m.GetContextInfo()
	case msg.GetContactMessage() != nil:
		m := msg.GetContactMessage()
		return message.Contact{DisplayName: m.GetDisplayName(), VCard: m.GetVcard()}, m.GetContextInfo()
	case msg.GetPollCreationMessage() != nil:
		return decodePoll(msg.GetPollCreationMessage()), nil
	case msg.GetPollCreationMessageV3() != nil:
		return decodePoll(msg.GetPollCreationMessageV3()), nil
	default:
		return message.Unknown{Type: "unsupported"}, nil
	}
}

func decodePoll(m *waE2E.PollCreationMessage) message.Poll {
	p := message.Poll{Question: m.GetName()}
	for _, opt := range m.GetOptions() {
		p.Options = append(p.Options, opt.GetOptionName())
	}
	return p
}

func decodeQuote(ci *waE2E.ContextInfo) *message.Quote {
	if ci == nil || ci.GetQuotedMessage() == nil {
		return nil
	}
	content, _ := decodeContent(ci.GetQuotedMessage())
	text := message.ResolveText(content)
	if text == "" {
		text = "<" + content.Kind().String() + ">"
	}
	return &message.Quote{Sender: identity.ID(ci.GetParticipant()), Text: text}
}
