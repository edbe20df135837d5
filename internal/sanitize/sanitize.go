// Package sanitize cleans free-form text that users attach to runs. Labels
// are stored in the run archive and returned verbatim to MCP clients, so
// they are reduced to a single line of plain text.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxLabelLength is the maximum allowed length for a run label, in bytes.
const MaxLabelLength = 120

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reTripleBacktick = regexp.MustCompile("```+")

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Label sanitizes a run label:
//  1. Strip null bytes and ASCII control characters
//  2. Strip XML/HTML tags
//  3. Collapse triple backticks to a single backtick
//  4. Collapse whitespace runs, including newlines, to one space
//  5. Truncate to MaxLabelLength on a rune boundary
func Label(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))

	if len(s) > MaxLabelLength {
		cut := MaxLabelLength
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
// Newlines and tabs become spaces so words stay separated.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
