/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package cmn

import (
	"fmt"
	"strings"
)

// MakePunycode turns any byte string into one that is safe to use as a
// single filesystem path component: every byte that isn't a letter,
// digit, dash, or underscore is escaped as "%HH". This is the
// "punycode-style escape" spec.md §3 names (not RFC 3492 punycode — the
// teacher repo and original_source both use this looser, faodel-derived
// term for a percent-escape).
func MakePunycode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isPunySafe(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// ExpandPunycode reverses MakePunycode. ExpandPunycode(MakePunycode(s))
// == s for every byte string s (spec.md §8 round-trip law).
func ExpandPunycode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("punycode: truncated escape at offset %d", i)
		}
		var v int
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &v); err != nil {
			return "", fmt.Errorf("punycode: invalid escape %q: %w", s[i:i+3], err)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

func isPunySafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
