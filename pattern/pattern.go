// Package pattern compiles cache key patterns. A pattern is either an exact
// key or a key containing a single "*" wildcard that matches any substring,
// including the empty one. The same compiled form is used to resolve TTL
// rules and to clear groups of keys, so the two can never disagree on what
// a pattern matches.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Wildcard is the token that matches any run of characters.
const Wildcard = "*"

// ErrMultipleWildcards is returned by Compile when a pattern contains more
// than one wildcard token.
var ErrMultipleWildcards = errors.New("pattern: at most one wildcard allowed")

// Matcher reports whether keys match a compiled pattern.
type Matcher struct {
	raw string
	re  *regexp.Regexp // nil for exact patterns
}

// Compile validates p and returns its matcher. The literal parts of p are
// escaped, the wildcard becomes ".*" and the expression is anchored at both
// ends.
func Compile(p string) (*Matcher, error) {
	switch strings.Count(p, Wildcard) {
	case 0:
		return &Matcher{raw: p}, nil
	case 1:
		prefix, suffix, _ := strings.Cut(p, Wildcard)
		expr := "^(?s:" + regexp.QuoteMeta(prefix) + ".*" + regexp.QuoteMeta(suffix) + ")$"
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern: compile %q: %w", p, err)
		}
		return &Matcher{raw: p, re: re}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrMultipleWildcards, p)
	}
}

// MustCompile is like Compile but panics on an invalid pattern.
func MustCompile(p string) *Matcher {
	m, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether key matches the pattern.
func (m *Matcher) Match(key string) bool {
	if m.re == nil {
		return key == m.raw
	}
	return m.re.MatchString(key)
}

// IsWildcard reports whether the pattern contains the wildcard token.
func (m *Matcher) IsWildcard() bool { return m.re != nil }

// String returns the pattern as written.
func (m *Matcher) String() string { return m.raw }
