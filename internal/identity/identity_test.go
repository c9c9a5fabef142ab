// ABOUTME: Tests for identity classification, user extraction and sanitizing
// ABOUTME: Covers WhatsApp JIDs, device suffixes and Matrix-style identifiers

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		id   ID
		want Kind
	}{
		{"status@broadcast", KindStatus},
		{"120363012345678901@g.us", KindGroup},
		{"6281234567890@s.whatsapp.net", KindDirect},
		{"", KindDirect},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.id))
		})
	}
}

func TestUser(t *testing.T) {
	assert.Equal(t, ID("6281234"), User("6281234@s.whatsapp.net"))
	assert.Equal(t, ID("6281234"), User("6281234:12@s.whatsapp.net"))
	assert.Equal(t, ID("1203630"), User("1203630@g.us"))
	// Leading sigil is not a server separator
	assert.Equal(t, ID("@alice:example.org"), User("@alice:example.org"))
	assert.Equal(t, ID("plain"), User("plain"))
}

func TestSameUser(t *testing.T) {
	assert.True(t, SameUser("6281234:3@s.whatsapp.net", "6281234@s.whatsapp.net"))
	assert.False(t, SameUser("6281234@s.whatsapp.net", "6289999@s.whatsapp.net"))
	assert.False(t, SameUser("", ""))
	assert.False(t, SameUser("6281234@s.whatsapp.net", ""))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "6281234@s.whatsapp.net", Sanitize("6281234@s.whatsapp.net"))
	assert.Equal(t, "6281234_3@s.whatsapp.net", Sanitize("6281234:3@s.whatsapp.net"))
	assert.Equal(t, "_room_example.org", Sanitize("!room:example.org"))
	assert.Equal(t, "a_b_c", Sanitize("a/b c"))
	assert.Equal(t, "unknown", Sanitize(""))
	assert.Equal(t, "__", Sanitize("éü"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "group", KindGroup.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
