package metrics

import "strings"

// normalizeLabel canonicalizes a label value so a counter series does
// not split on casing or stray whitespace.
func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
