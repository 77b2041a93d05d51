package userutil

import (
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// maxUsernameLen bounds sanitized values so that derived kernel object names
// (pipe paths, mutex names) stay well under Windows name-length limits.
const maxUsernameLen = 64

// SanitizeUsername normalizes username-like values used in pipe and mutex
// names: trims whitespace, replaces runs of disallowed characters with "_",
// and truncates overlong values.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	value = invalidUsernameRune.ReplaceAllString(value, "_")
	if len(value) > maxUsernameLen {
		value = value[:maxUsernameLen]
	}
	return value
}
