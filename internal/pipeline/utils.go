// =============================================================================
// utils.go - helpers
// =============================================================================
//
// Small string and hashing helpers used across the pipeline.
//
// =============================================================================
package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// normalizeWhitespace collapses runs of whitespace into single spaces.
//
//	normalizeWhitespace("  hello \n\t world  ")  // "hello world"
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n characters without splitting a
// multi-byte character. No ellipsis is added.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// truncateBytes keeps the first n bytes of b as a string. Used for error
// bodies that end up in logs and in-band error strings.
func truncateBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), "")
}

// EntryUID derives the stable identity of a feed item.
//
// The hash input is the plain concatenation link+title, so the value matches
// UIDs produced by earlier runs.
func EntryUID(link, title string) string {
	sum := sha1.Sum([]byte(link + title))
	return hex.EncodeToString(sum[:])
}

// strPtr returns a pointer to a copy of s.
func strPtr(s string) *string {
	return &s
}
