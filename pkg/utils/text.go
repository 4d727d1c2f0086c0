// Package utils provides shared helpers for logging, vector math and text.
package utils

import "unicode/utf8"

// Truncate returns s cut to maxLen runes with "..." appended when it was cut.
// If maxLen is 0 or negative, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
