package filesystem

import (
	"fmt"
	"regexp"
	"strings"
)

// Wildcard matches file names against a filter such as "*.css,*.less".
// '?' matches one character, '*' matches any run of characters and ','
// separates alternatives. Matching ignores case.
type Wildcard struct {
	pattern string
	re      *regexp.Regexp
}

// CompileWildcard compiles filter. An empty filter returns nil, and a nil
// *Wildcard matches everything.
func CompileWildcard(filter string) (*Wildcard, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}

	var alts []string
	for _, alt := range strings.Split(filter, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		var b strings.Builder
		for _, r := range alt {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		alts = append(alts, b.String())
	}
	if len(alts) == 0 {
		return nil, nil
	}

	re, err := regexp.Compile("(?is)^(?:" + strings.Join(alts, "|") + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
	}
	return &Wildcard{pattern: filter, re: re}, nil
}

// Match reports whether name matches.
func (w *Wildcard) Match(name string) bool {
	if w == nil {
		return true
	}
	return w.re.MatchString(name)
}

func (w *Wildcard) String() string {
	if w == nil {
		return ""
	}
	return w.pattern
}
