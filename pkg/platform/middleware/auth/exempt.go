package auth

import (
	"strings"

	wstrings "warden/pkg/platform/strings"
)

const wildcardSuffix = "/**"

// PathMatcher decides which request paths bypass authentication.
//
// Two pattern forms are supported:
//   - "/health": literal prefix, matches any path starting with it
//   - "/docs/**": matches "/docs" itself and everything below "/docs/"
type PathMatcher struct {
	prefixes []string
	subtrees []string
}

// NewPathMatcher builds a matcher from configured patterns.
// Blank and duplicate patterns are ignored.
func NewPathMatcher(patterns []string) *PathMatcher {
	m := &PathMatcher{}
	for _, p := range wstrings.DedupeAndTrim(patterns) {
		if base, ok := strings.CutSuffix(p, wildcardSuffix); ok {
			m.subtrees = append(m.subtrees, base)
			continue
		}
		m.prefixes = append(m.prefixes, p)
	}
	return m
}

// Matches reports whether path is exempt.
func (m *PathMatcher) Matches(path string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, base := range m.subtrees {
		if path == base || strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}

// Patterns returns the normalised patterns, literal prefixes first.
func (m *PathMatcher) Patterns() []string {
	out := make([]string, 0, len(m.prefixes)+len(m.subtrees))
	out = append(out, m.prefixes...)
	for _, base := range m.subtrees {
		out = append(out, base+wildcardSuffix)
	}
	return out
}
