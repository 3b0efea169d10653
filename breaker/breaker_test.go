package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keksclan/tickercache/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 503")

func newTestBreaker(cfg Config) (*Breaker, *clock.Manual) {
	m := clock.NewManual(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))
	return NewWithClock(cfg, m), m
}

// trip opens b and lets its open timeout pass.
func trip(b *Breaker, m *clock.Manual) {
	for b.State() == Closed {
		b.OnFailure()
	}
	m.Advance(b.cfg.OpenTimeout)
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: 5 * time.Second})

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	assert.Equal(t, Closed, b.State(), "a success resets the failure count")

	b.OnFailure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestOpenTimeout(t *testing.T) {
	b, m := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: 5 * time.Second})
	b.OnFailure()

	m.Advance(4999 * time.Millisecond)
	assert.Equal(t, Open, b.State())

	m.Advance(time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())
}

func TestHalfOpen(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool // true = success
		want     State
	}{
		{"all trials succeed", []bool{true, true}, Closed},
		{"one trial short", []bool{true}, HalfOpen},
		{"failure reopens", []bool{true, false}, Open},
		{"first trial fails", []bool{false}, Open},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, m := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second, HalfOpenMaxSuccess: 2})
			trip(b, m)
			for _, ok := range tt.outcomes {
				require.True(t, b.Allow())
				if ok {
					b.OnSuccess()
				} else {
					b.OnFailure()
				}
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestHalfOpenLimitsConcurrentTrials(t *testing.T) {
	b, m := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second, HalfOpenMaxSuccess: 2})
	trip(b, m)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "both trial slots are in flight")

	b.OnSuccess()
	assert.True(t, b.Allow(), "a reported trial frees its slot")
}

func TestDoRejectsWhenOpen(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	_, err := Do(t.Context(), b, func(context.Context) (int, error) { return 0, errUpstream })
	require.ErrorIs(t, err, errUpstream)

	calls := 0
	_, err = Do(t.Context(), b, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestDoIgnoredErrors(t *testing.T) {
	notFound := errors.New("not found")
	b, m := newTestBreaker(Config{
		FailureThreshold:   1,
		OpenTimeout:        time.Minute,
		HalfOpenMaxSuccess: 1,
		IsFailure:          func(err error) bool { return !errors.Is(err, notFound) },
	})

	for range 3 {
		_, _ = Do(t.Context(), b, func(context.Context) (int, error) { return 0, notFound })
	}
	assert.Equal(t, Closed, b.State())

	trip(b, m)
	_, _ = Do(t.Context(), b, func(context.Context) (int, error) { return 0, notFound })
	assert.True(t, b.Allow(), "an ignored error gives its trial slot back")
}

func TestDoCancellationDoesNotCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	_, _ = Do(t.Context(), b, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.Equal(t, Closed, b.State())
}

func TestOnStateChange(t *testing.T) {
	var seen []string
	b, m := newTestBreaker(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange:    func(from, to State) { seen = append(seen, from.String()+">"+to.String()) },
	})

	b.OnFailure()
	m.Advance(time.Second)
	require.True(t, b.Allow())
	b.OnSuccess()

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, seen)
}
