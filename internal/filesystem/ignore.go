package filesystem

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreMatcher hides entries from enumeration using gitignore syntax.
type IgnoreMatcher struct {
	gi *ignore.GitIgnore
}

// NewIgnoreMatcher compiles patterns. No patterns yields nil, which ignores
// nothing.
func NewIgnoreMatcher(patterns ...string) *IgnoreMatcher {
	var lines []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return &IgnoreMatcher{gi: ignore.CompileIgnoreLines(lines...)}
}

// Ignored reports whether relPath should be hidden.
func (m *IgnoreMatcher) Ignored(relPath string, isDir bool) bool {
	if m == nil || relPath == "" {
		return false
	}
	if isDir {
		relPath += "/"
	}
	return m.gi.MatchesPath(relPath)
}
