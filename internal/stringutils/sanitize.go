package stringutils

import (
	"strings"
	"unicode"
)

// CleanText drops NUL, C0 and C1 control characters and invalid UTF-8 from
// user supplied text, keeps tab and newline, and trims surrounding space.
func CleanText(s string) string {
	if !strings.ContainsFunc(s, isUnwanted) {
		return strings.TrimSpace(s)
	}

	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if isUnwanted(r) {
			return -1
		}
		return r
	}, s))
}

// CleanLine is CleanText for single line fields such as names. Line breaks
// and tabs collapse to a single space.
func CleanLine(s string) string {
	return strings.Join(strings.Fields(CleanText(s)), " ")
}

func isUnwanted(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r == unicode.ReplacementChar:
		return true
	case r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f):
		return true
	default:
		return !unicode.IsPrint(r) && !unicode.IsSpace(r)
	}
}
