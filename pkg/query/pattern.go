package query

import (
	"regexp"
	"strings"
	"sync"

	"github.com/docshard/docshard/pkg/normalize"
)

// PatternMatcher decides whether a document value satisfies a like pattern.
type PatternMatcher interface {
	Match(value interface{}, pattern string) bool
}

// LikeMatcher implements SQL LIKE semantics: '%' matches any run of
// characters, '_' matches exactly one. Matching is case-insensitive and
// anchored at both ends. Compiled patterns are memoized.
type LikeMatcher struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewLikeMatcher creates a matcher with an empty pattern cache.
func NewLikeMatcher() *LikeMatcher {
	return &LikeMatcher{compiled: make(map[string]*regexp.Regexp)}
}

// Match reports whether the value's normalized form satisfies the pattern.
// Values that cannot be normalized never match; neither do invalid patterns.
func (m *LikeMatcher) Match(value interface{}, pattern string) bool {
	s, err := normalize.Value(value)
	if err != nil {
		return false
	}
	re, err := m.compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func (m *LikeMatcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.compiled[pattern]; ok {
		return re, nil
	}

	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	m.compiled[pattern] = re
	return re, nil
}
