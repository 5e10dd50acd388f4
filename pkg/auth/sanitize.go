package auth

import (
	"html"
	"strings"
	"unicode"
)

// SanitizeDisplayName prepares a handle for use as the identity record's
// display name. Control characters are dropped and markup is escaped.
func SanitizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	name = removeControlChars(name)
	return html.EscapeString(name)
}

// removeControlChars removes control characters except newline and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
