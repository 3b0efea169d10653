// Package breaker provides a thread-safe circuit breaker for calls to the
// market data provider.
//
// A Closed breaker lets calls through and counts consecutive failures. At
// FailureThreshold it opens and rejects calls for OpenTimeout. It then
// turns HalfOpen and admits at most HalfOpenMaxSuccess trials at a time:
// that many consecutive successes close it, any failure opens it again.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Keksclan/tickercache/clock"
)

// ErrOpen is returned by Do when the breaker rejects a call.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker parameters. Thresholds below 1 are
// raised to 1.
type Config struct {
	FailureThreshold   int
	OpenTimeout        time.Duration
	HalfOpenMaxSuccess int

	// IsFailure decides whether an error returned through Do counts against
	// the breaker. Nil counts every error except context cancellation.
	IsFailure func(error) bool

	// OnStateChange, if set, is called with the breaker lock held whenever
	// the state changes. It must not call back into the breaker.
	OnStateChange func(from, to State)
}

// Breaker is a circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	cfg   Config
	clock clock.Clock

	mu        sync.Mutex
	state     State
	failures  int // consecutive, Closed only
	successes int // consecutive, HalfOpen only
	trials    int // admitted and not yet reported, HalfOpen only
	openedAt  time.Time
}

// New creates a Breaker with the given configuration using the system clock.
func New(cfg Config) *Breaker {
	return NewWithClock(cfg, clock.System{})
}

// NewWithClock creates a Breaker that reads time from clk.
func NewWithClock(cfg Config, clk clock.Clock) *Breaker {
	cfg.FailureThreshold = max(cfg.FailureThreshold, 1)
	cfg.HalfOpenMaxSuccess = max(cfg.HalfOpenMaxSuccess, 1)
	return &Breaker{cfg: cfg, clock: clk}
}

// State returns the current state. An Open breaker whose timeout has passed
// reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

// Allow reports whether a call may proceed. In HalfOpen a true result takes
// a trial slot that the next OnSuccess or OnFailure gives back.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.trials >= b.cfg.HalfOpenMaxSuccess {
			return false
		}
		b.trials++
		return true
	default:
		return false
	}
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.trials = max(b.trials-1, 0)
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.transition(Closed)
		}
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
	}
}

// release returns a trial slot for a call whose outcome does not count.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.trials = max(b.trials-1, 0)
	}
}

// Do runs fn when the breaker allows it and records the outcome. A rejected
// call returns ErrOpen without running fn.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	if !b.Allow() {
		var zero T
		return zero, ErrOpen
	}
	v, err := fn(ctx)
	switch {
	case err == nil:
		b.OnSuccess()
	case b.counts(err):
		b.OnFailure()
	default:
		b.release()
	}
	return v, err
}

func (b *Breaker) counts(err error) bool {
	if b.cfg.IsFailure != nil {
		return b.cfg.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}

// expire moves an Open breaker to HalfOpen once OpenTimeout has passed.
// b.mu must be held.
func (b *Breaker) expire() {
	if b.state == Open && b.clock.Now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(HalfOpen)
	}
}

// transition enters state s with fresh counters. b.mu must be held.
func (b *Breaker) transition(s State) {
	from := b.state
	b.state = s
	b.failures, b.successes, b.trials = 0, 0, 0
	if s == Open {
		b.openedAt = b.clock.Now()
	}
	if from != s && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, s)
	}
}
