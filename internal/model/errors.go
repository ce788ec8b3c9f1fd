package model

import "strings"

// NoErrorDetails is shown when the backend reports an error without a message
const NoErrorDetails = "No error details available"

// ErrorText returns msg, or the fallback text when msg is blank.
func ErrorText(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return NoErrorDetails
	}
	return msg
}

// Truncate shortens s to at most n runes for inline display.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
