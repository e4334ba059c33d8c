package format

import (
	"strings"

	"github.com/sandertv/gophertunnel/minecraft/text"
)

// Component is a piece of rich text pushed to a connection, such as a tab list
// display name or a header line. The zero value renders as empty text.
type Component struct {
	// Text is the content of the component with section sign formatting codes
	// already applied.
	Text string
}

// Legacy converts a string using ampersand colour codes, such as "&c[Admin] ",
// into a Component with section sign codes understood by the client.
func Legacy(s string) Component {
	return Component{Text: Colourise(s)}
}

// Plain returns the text of the component with all formatting codes removed.
// It is used when writing component content to logs.
func (c Component) Plain() string {
	return text.Clean(c.Text)
}

// Zero reports if the component holds no text at all.
func (c Component) Zero() bool {
	return c.Text == ""
}

// Equal reports if two optional components carry the same value. Two absent
// components are equal.
func Equal(a, b *Component) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Text == b.Text
}

// formattingCodes holds every character valid after a formatting prefix.
const formattingCodes = "0123456789abcdefklmnor"

// Colourise replaces ampersand formatting prefixes with section signs. An
// ampersand followed by anything other than a known code is left untouched.
func Colourise(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '&' && i+1 < len(runes) && strings.ContainsRune(formattingCodes, runes[i+1]) {
			b.WriteRune('§')
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}
