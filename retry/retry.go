// Package retry re-runs failing calls with capped exponential backoff. The
// upstream market data client and the admin CLI both go through it.
package retry

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config describes a retry schedule.
type Config struct {
	// MaxAttempts counts the first call. Zero and one disable retries.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. It doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter spreads each delay by up to ±Jitter of its value (0.2 = ±20%).
	Jitter float64

	// Retryable selects errors worth another attempt. With a nil Retryable
	// the first error is returned as is.
	Retryable func(error) bool
}

// OnCodes returns a Retryable matching gRPC status errors with any of cs.
func OnCodes(cs ...codes.Code) func(error) bool {
	return func(err error) bool {
		st, ok := status.FromError(err)
		return ok && slices.Contains(cs, st.Code())
	}
}

// Do runs fn until it succeeds, returns an error Retryable rejects, or
// MaxAttempts is used up; the last error is returned. If ctx ends while
// waiting between attempts, Do returns ctx.Err().
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt+1 >= cfg.MaxAttempts || cfg.Retryable == nil || !cfg.Retryable(err) {
			return zero, err
		}
		if err := sleep(ctx, backoff(cfg, attempt)); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
