package models

import "unicode/utf8"

// Truncate shortens s to at most n runes, appending an ellipsis when it had
// to cut. Used for breadcrumb snippets and latest_summary session metadata.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
