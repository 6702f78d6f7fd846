package utils

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the wire format for timestamps in API responses and logs
const TimestampLayout = time.RFC3339Nano

// TruncateString truncates s to at most length runes, appending "..." when cut
func TruncateString(s string, length int) string {
	if length <= 0 || utf8.RuneCountInString(s) <= length {
		return s
	}
	runes := []rune(s)
	if length <= 3 {
		return string(runes[:length])
	}
	return string(runes[:length-3]) + "..."
}

// FormatTimestamp renders t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatOptionalTimestamp renders t or returns nil when unset
func FormatOptionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := FormatTimestamp(*t)
	return &formatted
}

// SplitCSV splits a comma separated list, dropping blanks
func SplitCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
