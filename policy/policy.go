// Package policy resolves cache keys to time-to-live durations.
//
// Resolution order:
//   - Built-in prefix rules, in the order they were configured.
//   - Registered rules, in registration order. A rule with a wildcard
//     matches through the shared pattern matcher; a rule without one
//     requires an exact key.
//   - The default TTL.
//
// The first match wins. Registration order, not specificity, decides
// between two registered rules that both match a key.
package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Keksclan/tickercache/pattern"
)

// DefaultTTL is used when no rule matches a key.
const DefaultTTL = 5 * time.Minute

// ErrNegativeTTL is returned when a rule is configured with a negative TTL.
var ErrNegativeTTL = errors.New("policy: ttl must not be negative")

// TTLPolicy maps cache keys to TTLs. All methods are safe for concurrent use.
type TTLPolicy struct {
	mu       sync.RWMutex
	prefixes []rule
	rules    []rule
	index    map[string]int // pattern -> position in rules
	fallback time.Duration
}

// Option configures a TTLPolicy.
type Option func(*TTLPolicy)

// WithPrefix adds a built-in prefix rule. Prefix rules are checked before
// any registered rule, in the order the options are applied.
func WithPrefix(prefix string, ttl time.Duration) Option {
	return func(p *TTLPolicy) {
		p.prefixes = append(p.prefixes, rule{kind: kindPrefix, pattern: prefix, ttl: max(ttl, 0)})
	}
}

// WithDefaultTTL overrides the TTL returned when nothing matches.
func WithDefaultTTL(d time.Duration) Option {
	return func(p *TTLPolicy) {
		p.fallback = max(d, 0)
	}
}

// New creates a TTLPolicy with no rules. Without options every key resolves
// to DefaultTTL.
func New(opts ...Option) *TTLPolicy {
	p := &TTLPolicy{
		index:    make(map[string]int),
		fallback: DefaultTTL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Register adds a rule for pat. Registering a pattern that already exists
// replaces its TTL and keeps its original position.
//
// Patterns with more than one wildcard and negative TTLs are rejected.
func (p *TTLPolicy) Register(pat string, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w: %q", ErrNegativeTTL, pat)
	}
	m, err := pattern.Compile(pat)
	if err != nil {
		return err
	}
	kind := kindExact
	if m.IsWildcard() {
		kind = kindWildcard
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r := rule{kind: kind, pattern: pat, m: m, ttl: ttl}
	if i, ok := p.index[pat]; ok {
		p.rules[i] = r
		return nil
	}
	p.index[pat] = len(p.rules)
	p.rules = append(p.rules, r)
	return nil
}

// MustRegister is like Register but panics on error. It is meant for static
// rule tables.
func (p *TTLPolicy) MustRegister(pat string, ttl time.Duration) {
	if err := p.Register(pat, ttl); err != nil {
		panic(err)
	}
}

// Resolve returns the TTL for key. It never fails.
func (p *TTLPolicy) Resolve(key string) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := range p.prefixes {
		if p.prefixes[i].match(key) {
			return p.prefixes[i].ttl
		}
	}
	for i := range p.rules {
		if p.rules[i].match(key) {
			return p.rules[i].ttl
		}
	}
	return p.fallback
}

// Default returns the fallback TTL.
func (p *TTLPolicy) Default() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallback
}

// Rules returns the built-in prefix rules followed by the registered rules,
// in evaluation order.
func (p *TTLPolicy) Rules() []Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Rule, 0, len(p.prefixes)+len(p.rules))
	for _, r := range p.prefixes {
		out = append(out, Rule{Pattern: r.pattern, TTL: r.ttl, Prefix: true})
	}
	for _, r := range p.rules {
		out = append(out, Rule{Pattern: r.pattern, TTL: r.ttl})
	}
	return out
}
