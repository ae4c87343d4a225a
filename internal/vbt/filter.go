package vbt

import "strings"

// ParseExcludePatterns splits a comma-separated exclusion list into folder
// patterns. Entries are trimmed of surrounding whitespace and empty entries
// are dropped; nothing else is normalized.
func ParseExcludePatterns(raw string) []string {
	var patterns []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		patterns = append(patterns, part)
	}
	return patterns
}

// FilterPaths returns the paths not covered by any exclusion pattern,
// preserving input order. Matching is a plain string prefix, not
// segment-aware: "lib" covers "lib/x" and also "library/x". Comparison is
// case-sensitive.
func FilterPaths(paths []string, patterns []string) []string {
	if len(patterns) == 0 {
		return paths
	}
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !excluded(p, patterns) {
			kept = append(kept, p)
		}
	}
	return kept
}

func excluded(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasPrefix(path, pattern) {
			return true
		}
	}
	return false
}
