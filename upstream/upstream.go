// Package upstream composes resilience middleware around calls to the
// market data provider.
//
// A call is any func(ctx) (T, error). Middlewares wrap calls the same way
// server interceptors wrap handlers, so a provider client builds its guard
// once and runs every request through it.
package upstream

import (
	"context"
	"time"

	"github.com/Keksclan/tickercache/breaker"
	"github.com/Keksclan/tickercache/ratelimit"
	"github.com/Keksclan/tickercache/retry"
)

// Call is the unit of work that middlewares wrap.
type Call[T any] func(ctx context.Context) (T, error)

// Middleware transforms a Call, allowing pre/post behavior composition.
type Middleware[T any] func(Call[T]) Call[T]

// Chain composes middlewares from left to right, i.e., Chain(A, B)(c) => A(B(c)).
func Chain[T any](mw ...Middleware[T]) Middleware[T] {
	return func(next Call[T]) Call[T] {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Wrap applies the middleware chain to a call and returns the wrapped call.
func Wrap[T any](c Call[T], mw ...Middleware[T]) Call[T] {
	if len(mw) == 0 {
		return c
	}
	return Chain(mw...)(c)
}

// RateLimit waits for a token from l before every call.
func RateLimit[T any](l *ratelimit.Limiter) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			if err := l.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
			return next(ctx)
		}
	}
}

// Breaker rejects calls with breaker.ErrOpen while b is open and records
// each outcome.
func Breaker[T any](b *breaker.Breaker) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			return breaker.Do(ctx, b, next)
		}
	}
}

// Retry repeats failed calls according to cfg.
func Retry[T any](cfg retry.Config) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			return retry.Do(ctx, cfg, next)
		}
	}
}

// Timeout bounds each call to d.
func Timeout[T any](d time.Duration) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx)
		}
	}
}

// Guard bundles the resilience settings of one provider. Nil fields are
// skipped.
type Guard struct {
	Limiter *ratelimit.Limiter
	Breaker *breaker.Breaker
	Retry   *retry.Config
	Timeout time.Duration
}

// Do runs c through g: rate limit, then breaker, then retries, with the
// timeout applied to each attempt.
func Do[T any](ctx context.Context, g *Guard, c Call[T]) (T, error) {
	if g == nil {
		return c(ctx)
	}
	var mw []Middleware[T]
	if g.Limiter != nil {
		mw = append(mw, RateLimit[T](g.Limiter))
	}
	if g.Breaker != nil {
		mw = append(mw, Breaker[T](g.Breaker))
	}
	if g.Retry != nil {
		mw = append(mw, Retry[T](*g.Retry))
	}
	if g.Timeout > 0 {
		mw = append(mw, Timeout[T](g.Timeout))
	}
	return Wrap(c, mw...)(ctx)
}
