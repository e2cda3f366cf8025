package utils

import "strings"

// PartialURL keeps the first n runes of a URL so webhook secrets don't end up in responses or logs.
func PartialURL(u string, n int) string {
	runes := []rune(u)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes) + "..."
}

// WithQuery appends a single query pair to a URL that may already carry a query string.
func WithQuery(base, key, value string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + key + "=" + value
}
