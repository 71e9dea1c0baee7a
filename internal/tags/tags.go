// Package tags normalizes and validates tag name sets used at write time and
// as search filters.
package tags

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxLength is the maximum accepted tag length in runes.
const MaxLength = 100

// Separator joins segments of a hierarchical tag. A hierarchical tag such as
// "work/projects" is a single logical tag, never split.
const Separator = "/"

// Sanitize cleans a raw tag list. It trims whitespace, de-duplicates
// case-insensitively while preserving the first-seen casing, drops empty
// strings, and rejects over-length tags with a warning.
//
// Sanitize never fails: rejected tags are dropped and reported via warnings
// so the caller can surface partial-success information.
func Sanitize(raw []string) (accepted []string, warnings []string) {
	seen := make(map[string]struct{}, len(raw))
	accepted = []string{}
	for _, r := range raw {
		if r == "" {
			continue
		}
		t := strings.TrimSpace(r)
		t = strings.Trim(t, Separator)
		if t == "" {
			warnings = append(warnings, fmt.Sprintf("dropped blank tag %q", r))
			continue
		}
		if utf8.RuneCountInString(t) > MaxLength {
			warnings = append(warnings, fmt.Sprintf("dropped tag %q: exceeds %d characters", truncateForMessage(t), MaxLength))
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		accepted = append(accepted, t)
	}
	return accepted, warnings
}

// truncateForMessage keeps warning messages readable for absurdly long tags.
func truncateForMessage(t string) string {
	const keep = 32
	if utf8.RuneCountInString(t) <= keep {
		return t
	}
	runes := []rune(t)
	return string(runes[:keep]) + "…"
}
