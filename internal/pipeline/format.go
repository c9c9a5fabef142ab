// ABOUTME: Log line formatting for archived text and saved media
// ABOUTME: Timestamps are UTC in the YYYY-MM-DD HH:MM:SS layout

package pipeline

import (
	"fmt"
	"strings"

	"github.com/2389/coven-archiver/internal/identity"
	"github.com/2389/coven-archiver/internal/message"
)

const timestampLayout = "2006-01-02 15:04:05"

// formatTextLine renders "[ts] name (sender): text" with an optional
// " [reply to <sender>: <text>]" suffix for quoted replies.
func formatTextLine(ts string, ev message.Event, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s): %s", ts, ev.PushName, ev.Sender, text)
	if q := ev.Quoted; q != nil && q.Text != "" {
		fmt.Fprintf(&b, " [reply to %s: %s]", q.Sender, q.Text)
	}
	return b.String()
}

func formatMediaLine(ts string, kind message.Kind, sender identity.ID, path string) string {
	return fmt.Sprintf("[%s] MEDIA %s from %s saved %s", ts, kind, sender, path)
}

func formatStatusLine(ts string, sender identity.ID, path string) string {
	return fmt.Sprintf("[%s] STATUS from %s: saved %s", ts, sender, path)
}
