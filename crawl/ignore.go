package crawl

import (
	"fmt"
	"regexp"
)

// Ignores is a set of regular expressions matched against unresolved paths.
// A nil *Ignores matches nothing.
type Ignores struct {
	patterns []*regexp.Regexp
}

// NewIgnores compiles patterns. Empty patterns are skipped.
func NewIgnores(patterns ...string) (*Ignores, error) {
	ig := &Ignores{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		ig.patterns = append(ig.patterns, re)
	}
	return ig, nil
}

// Match reports whether rel matches any pattern.
func (ig *Ignores) Match(rel string) bool {
	if ig == nil {
		return false
	}
	for _, re := range ig.patterns {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

func (ig *Ignores) Len() int {
	if ig == nil {
		return 0
	}
	return len(ig.patterns)
}
