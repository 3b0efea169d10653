package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FetchFunc loads a value from the source of truth. A coalesced fetch runs
// under a context detached from any one caller's cancellation, bounded by
// the cache's fetch timeout; other timeouts are the fetch function's own
// business.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Source tells where a loaded value came from.
type Source int

const (
	// SourceCache means the value was fresh in the cache.
	SourceCache Source = iota
	// SourceFetch means the value was fetched and stored.
	SourceFetch
	// SourceStale means the fetch failed and an expired value was served.
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceFetch:
		return "fetch"
	case SourceStale:
		return "stale"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Result is the outcome of Typed.Load.
type Result[T any] struct {
	Value  T
	Source Source
	// FetchErr is the masked fetch error when Source is SourceStale.
	FetchErr error
}

// Typed is a view of a Cache for values of type T. Values are stored as
// JSON, so a read returns a deep copy of what was written.
type Typed[T any] struct {
	c *Cache
}

// For returns a typed view of c. Views are cheap; every view of the same
// Cache shares its entries.
func For[T any](c *Cache) *Typed[T] {
	return &Typed[T]{c: c}
}

// Cache returns the underlying shared cache.
func (t *Typed[T]) Cache() *Cache { return t.c }

// Get returns the value for key when it is present and fresh.
func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool) {
	e, ok := t.c.fresh(ctx, key)
	if !ok {
		var zero T
		return zero, false
	}
	return t.decode(ctx, key, e)
}

// Peek returns any value held for key regardless of its age.
func (t *Typed[T]) Peek(ctx context.Context, key string) (T, bool) {
	e, ok := t.c.stale(ctx, key)
	if !ok {
		var zero T
		return zero, false
	}
	return t.decode(ctx, key, e)
}

// Set stores v under key stamped with the current time, replacing any
// previous entry.
func (t *Typed[T]) Set(ctx context.Context, key string, v T, opts ...SetOption) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	e := &envelope{Data: data, Timestamp: t.c.clock.Now().UnixMilli()}
	for _, o := range opts {
		o(e)
	}
	return t.c.write(ctx, key, e)
}

// Delete removes key.
func (t *Typed[T]) Delete(ctx context.Context, key string) error {
	return t.c.Delete(ctx, key)
}

// GetOrFetch returns the fresh cached value for key, or fetches, stores and
// returns a new one. When the fetch fails and any earlier value for key
// exists, that value is returned instead of the error. The fetch error is
// returned only when there is nothing to fall back to.
func (t *Typed[T]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	res, err := t.Load(ctx, key, fetch)
	return res.Value, err
}

// Load is GetOrFetch reporting where the value came from.
func (t *Typed[T]) Load(ctx context.Context, key string, fetch FetchFunc[T]) (Result[T], error) {
	if v, ok := t.Get(ctx, key); ok {
		return Result[T]{Value: v, Source: SourceCache}, nil
	}
	v, err := t.fetch(ctx, key, fetch)
	if err == nil {
		return Result[T]{Value: v, Source: SourceFetch}, nil
	}
	return t.fallback(ctx, key, err)
}

// Refresh fetches key even when a fresh value is cached. On success the
// entry is overwritten; on failure the existing entry is left alone and the
// fetch error is returned.
func (t *Typed[T]) Refresh(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	return t.fetch(ctx, key, fetch)
}

func (t *Typed[T]) fallback(ctx context.Context, key string, fetchErr error) (Result[T], error) {
	v, ok := t.Peek(ctx, key)
	if !ok {
		return Result[T]{}, fetchErr
	}
	t.c.metrics.Stale(key)
	t.c.log.Warn("serving stale cache entry", zap.String("key", key), zap.Error(fetchErr))
	return Result[T]{Value: v, Source: SourceStale, FetchErr: fetchErr}, nil
}

// fetch runs fn and stores its result. Concurrent callers for the same key
// share one call unless coalescing is disabled. The shared call outlives any
// caller that gives up: each caller stops waiting when its own ctx ends.
func (t *Typed[T]) fetch(ctx context.Context, key string, fn FetchFunc[T]) (T, error) {
	var zero T
	if !t.c.coalesce {
		return t.fetchAndStore(ctx, key, fn)
	}
	ch := t.c.sf.DoChan(key, func() (any, error) {
		fctx, cancel := detach(ctx, t.c.fetchTimeout)
		defer cancel()
		return t.fetchAndStore(fctx, key, fn)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		tv, ok := r.Val.(T)
		if !ok {
			// Another view with a different type shared this key; fetch on our own.
			return t.fetchAndStore(ctx, key, fn)
		}
		if r.Shared {
			t.c.log.Debug("cache fetch coalesced", zap.String("key", key))
		}
		return tv, nil
	}
}

// detach keeps ctx's values, such as the active span, but drops its
// cancellation. A positive d bounds the detached context instead.
func detach(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
