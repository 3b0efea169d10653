// Package ratelimit provides token-bucket rate limiters backed by
// golang.org/x/time/rate. A single Limiter gates outbound calls to the
// market data provider; a Set hands out one limiter per key for the RPC
// gate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter that decides whether a request
// should be allowed.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps requests per second with the
// given burst size. A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, max(burst, 1))}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

// Allow reports whether a single request may proceed now.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Rule is the rate for one key of a Set.
type Rule struct {
	RPS   float64
	Burst int
}

// Set lazily creates one limiter per key. Keys without a rule share the
// fallback limiter.
type Set struct {
	fallback *Limiter
	rules    func(key string) (Rule, bool)

	mu   sync.Mutex
	keys map[string]*Limiter
}

// NewSet creates a Set. rules may be nil, in which case every key uses
// fallback.
func NewSet(fallback *Limiter, rules func(key string) (Rule, bool)) *Set {
	return &Set{fallback: fallback, rules: rules, keys: make(map[string]*Limiter)}
}

// For returns the limiter applying to key, or nil when neither a rule nor a
// fallback applies.
func (s *Set) For(key string) *Limiter {
	if s.rules == nil {
		return s.fallback
	}
	r, ok := s.rules(key)
	if !ok {
		return s.fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.keys[key]; ok {
		return l
	}
	l := NewLimiter(r.RPS, r.Burst)
	s.keys[key] = l
	return l
}
