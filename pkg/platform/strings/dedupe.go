// Package strings normalises string lists taken from claims and settings.
package strings

import "strings"

// DedupeAndTrim trims every value and drops blanks and repeats, keeping the
// first occurrence of each.
func DedupeAndTrim(values []string) []string {
	return normalize(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with case folded to lower.
func DedupeAndTrimLower(values []string) []string {
	return normalize(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

// SplitDedupe accepts both "a,b" and []string{"a", "b"}; env-sourced lists
// arrive in either shape.
func SplitDedupe(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	return DedupeAndTrim(parts)
}

func normalize(values []string, canon func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = canon(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
