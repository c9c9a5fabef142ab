// ABOUTME: File extension derivation from MIME types for stored media
// ABOUTME: Strips parameters and structured-syntax suffixes from the subtype

package media

import "strings"

// ExtensionFromMIME returns the subtype of a MIME type with parameters and
// any "+suffix" removed: "image/svg+xml" -> "svg", "audio/ogg; codecs=opus" -> "ogg".
// It falls back to "bin".
func ExtensionFromMIME(mime string) string {
	mime = strings.TrimSpace(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return "bin"
	}
	if i := strings.IndexByte(sub, '+'); i >= 0 {
		sub = sub[:i]
	}
	sub = strings.ToLower(strings.TrimSpace(sub))
	if sub == "" {
		return "bin"
	}
	return sub
}

// DefaultMIME is used when a transport omits the media type.
const DefaultMIME = "application/octet-stream"
