// Package identity maps raw circuit identifiers onto the canonical key used
// for every aggregation, lookup and comparison.
package identity

import (
	"strings"
)

// CanonicalID strips naming variants from a raw circuit identifier.
//
// Delimiters are applied in precedence order: underscore, slash, space, then a
// hyphen that directly follows three or more digits. Each one cuts the
// remaining string at its first occurrence, so "500335805-CH1/EXTRA" becomes
// "500335805" while "VID-1583" is left whole.
func CanonicalID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, delim := range []string{"_", "/", " "} {
		if i := strings.Index(s, delim); i >= 0 {
			s = s[:i]
		}
	}
	if i := digitHyphenIndex(s); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// digitHyphenIndex returns the index of the first hyphen preceded by at least
// three consecutive ASCII digits, or -1.
func digitHyphenIndex(s string) int {
	run := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			run++
		case c == '-' && run >= 3:
			return i
		default:
			run = 0
		}
	}
	return -1
}
