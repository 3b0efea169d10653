package policy

import (
	"strings"
	"time"

	"github.com/Keksclan/tickercache/pattern"
)

// matchKind distinguishes how a rule tests a key.
type matchKind int

const (
	kindPrefix   matchKind = iota // built-in, evaluated first
	kindExact                     // registered, no wildcard
	kindWildcard                  // registered, one wildcard
)

// rule binds a key matcher to a TTL.
type rule struct {
	kind    matchKind
	pattern string
	m       *pattern.Matcher // nil for prefix rules
	ttl     time.Duration
}

func (r *rule) match(key string) bool {
	if r.kind == kindPrefix {
		return strings.HasPrefix(key, r.pattern)
	}
	return r.m.Match(key)
}

// Rule is the exported view of a configured rule.
type Rule struct {
	Pattern string
	TTL     time.Duration
	// Prefix is true for built-in prefix rules.
	Prefix bool
}
