package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

// notes are plain text; every tag is stripped.
var noteSanitizer = bluemonday.StrictPolicy()

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SanitizeNote strips markup from a free-text note and caps it at maxRunes.
func SanitizeNote(input string, maxRunes int) string {
	out := strings.TrimSpace(noteSanitizer.Sanitize(input))
	if maxRunes > 0 {
		if r := []rune(out); len(r) > maxRunes {
			out = string(r[:maxRunes])
		}
	}
	return out
}
