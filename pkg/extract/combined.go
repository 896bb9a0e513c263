package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PlaceholderGlyph is rendered when neither an image nor a name is available.
const PlaceholderGlyph = "?"

// SplitCombined splits an "image-url,display-name" cell. One leading and one trailing
// double quote are stripped first. Only the first comma separates the parts.
func SplitCombined(raw string) (imageURL, name string) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)

	if i := strings.IndexByte(s, ','); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	if strings.HasPrefix(s, "http") {
		return strings.TrimSpace(s), ""
	}
	return "", strings.TrimSpace(s)
}

// Initials uses the first letter of the first two words of name.
func Initials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return PlaceholderGlyph
	}
	if len(words) > 2 {
		words = words[:2]
	}
	var b strings.Builder
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
