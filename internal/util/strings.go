package util

import (
	"strings"
	"unicode/utf8"
)

// SafeTruncate returns at most maxLen bytes of s for log output, so that only
// a prefix of secrets such as state values or tokens is ever written.
// A negative maxLen yields "".
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TruncateRunes shortens s to at most n characters by prefix truncation.
// It never splits a multi-byte character and is idempotent:
// TruncateRunes(TruncateRunes(s, n), n) == TruncateRunes(s, n).
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// NormalizeURL strips trailing slashes so base URLs can be joined with
// absolute paths.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
