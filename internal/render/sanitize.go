package render

import (
	"strings"
	"unicode"
)

// CleanText strips characters the bundled font cannot render. Runes outside
// the ASCII range are removed rather than substituted, except whitespace,
// which is always kept so explicit line breaks survive. Leading and trailing
// whitespace is trimmed.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 128 || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
