package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/tickercache/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGetOrFetch_MissFetchesAndStores(t *testing.T) {
	c, _ := newTestCache(t)
	q := For[quote](c)
	ctx := t.Context()

	var calls atomic.Int32
	fetch := func(context.Context) (quote, error) {
		calls.Add(1)
		return quote{Price: 42, Symbol: "AAPL"}, nil
	}

	res, err := q.Load(ctx, "stock:AAPL", fetch)
	require.NoError(t, err)
	assert.Equal(t, SourceFetch, res.Source)
	assert.Equal(t, 42.0, res.Value.Price)

	res, err = q.Load(ctx, "stock:AAPL", fetch)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetch_FreshHitSkipsFetch(t *testing.T) {
	c, _ := newTestCache(t)
	q := For[quote](c)
	ctx := t.Context()

	require.NoError(t, q.Set(ctx, "overview", quote{Price: 7}))
	got, err := q.GetOrFetch(ctx, "overview", func(context.Context) (quote, error) {
		t.Fatal("fetch must not run on a fresh hit")
		return quote{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.Price)
}

func TestGetOrFetch_NoFallbackReturnsFetchError(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("boom")

	_, err := For[quote](c).GetOrFetch(t.Context(), "details:ZZZZ", func(context.Context) (quote, error) {
		return quote{}, boom
	})
	require.ErrorIs(t, err, boom)

	st, err := c.Stats(t.Context())
	require.NoError(t, err)
	assert.Zero(t, st.Size, "failed fetch stores nothing")
}

func TestGetOrFetch_StaleFallbackReportsSource(t *testing.T) {
	c, clk := newTestCache(t)
	require.NoError(t, c.RegisterTTLRule("heatmap", time.Second))
	q := For[quote](c)
	ctx := t.Context()

	require.NoError(t, q.Set(ctx, "heatmap", quote{Price: 1}))
	clk.Advance(5 * time.Second)

	boom := errors.New("rate limited")
	res, err := q.Load(ctx, "heatmap", func(context.Context) (quote, error) { return quote{}, boom })
	require.NoError(t, err)
	assert.Equal(t, SourceStale, res.Source)
	assert.ErrorIs(t, res.FetchErr, boom)
	assert.Equal(t, 1.0, res.Value.Price)

	// A later successful fetch replaces the stale copy.
	res, err = q.Load(ctx, "heatmap", func(context.Context) (quote, error) { return quote{Price: 2}, nil })
	require.NoError(t, err)
	assert.Equal(t, SourceFetch, res.Source)

	clk.Advance(5 * time.Second)
	res, err = q.Load(ctx, "heatmap", func(context.Context) (quote, error) { return quote{}, boom })
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Value.Price)
}

func TestRefresh(t *testing.T) {
	c, _ := newTestCache(t)
	q := For[quote](c)
	ctx := t.Context()

	require.NoError(t, q.Set(ctx, "stock:MSFT", quote{Price: 1}))

	boom := errors.New("boom")
	_, err := q.Refresh(ctx, "stock:MSFT", func(context.Context) (quote, error) { return quote{}, boom })
	require.ErrorIs(t, err, boom)
	v, ok := q.Get(ctx, "stock:MSFT")
	require.True(t, ok, "failed refresh keeps the existing entry")
	assert.Equal(t, 1.0, v.Price)

	got, err := q.Refresh(ctx, "stock:MSFT", func(context.Context) (quote, error) { return quote{Price: 3}, nil })
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Price)
	v, _ = q.Get(ctx, "stock:MSFT")
	assert.Equal(t, 3.0, v.Price)
}

func TestGetOrFetch_CoalescesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t)
	q := For[quote](c)
	ctx := t.Context()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (quote, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return quote{Price: 9}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]quote, n)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = q.GetOrFetch(ctx, "stock:NVDA", fetch)
	}()
	<-started
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = q.GetOrFetch(ctx, "stock:NVDA", fetch)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 9.0, r.Price)
	}
}

func TestGetOrFetch_LeaderCancelDoesNotFailWaiters(t *testing.T) {
	c, _ := newTestCache(t)
	q := For[quote](c)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (quote, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return quote{Price: 7}, nil
		case <-ctx.Done():
			return quote{}, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(t.Context())
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := q.GetOrFetch(leaderCtx, "stock:AMD", fetch)
		leaderErr <- err
	}()
	<-started

	var got quote
	waiterErr := make(chan error, 1)
	go func() {
		v, err := q.GetOrFetch(t.Context(), "stock:AMD", fetch)
		got = v
		waiterErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	require.NoError(t, <-waiterErr)
	assert.Equal(t, 7.0, got.Price)
	assert.Equal(t, int32(1), calls.Load())

	v, ok := q.Get(t.Context(), "stock:AMD")
	require.True(t, ok, "the shared fetch still stores its result")
	assert.Equal(t, 7.0, v.Price)
}

func TestGetOrFetch_FetchTimeoutBoundsSharedFetch(t *testing.T) {
	c, _ := newTestCache(t, WithFetchTimeout(20*time.Millisecond))
	q := For[quote](c)

	_, err := q.GetOrFetch(t.Context(), "stock:INTC", func(ctx context.Context) (quote, error) {
		<-ctx.Done()
		return quote{}, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetOrFetch_WithoutCoalescingFetchesPerCaller(t *testing.T) {
	c, _ := newTestCache(t, WithoutCoalescing())
	q := For[quote](c)
	ctx := t.Context()

	var calls atomic.Int32
	var entered sync.WaitGroup
	entered.Add(2)
	release := make(chan struct{})
	fetch := func(context.Context) (quote, error) {
		n := calls.Add(1)
		entered.Done()
		<-release
		return quote{Price: float64(n)}, nil
	}

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.GetOrFetch(ctx, "stock:TSLA", fetch)
		}()
	}
	entered.Wait()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
	_, ok := q.Get(ctx, "stock:TSLA")
	assert.True(t, ok)
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	again, err := NewPrometheusMetrics(reg)
	require.NoError(t, err, "second registration reuses the collector")

	c, clk := newTestCache(t, WithMetrics(m))
	require.NoError(t, c.RegisterTTLRule("stock:*", time.Second))
	q := For[quote](c)
	ctx := t.Context()

	_, _ = q.Get(ctx, "stock:AAPL")
	require.NoError(t, q.Set(ctx, "stock:AAPL", quote{Price: 1}))
	_, _ = q.Get(ctx, "stock:AAPL")
	clk.Advance(2 * time.Second)
	_, _ = q.GetOrFetch(ctx, "stock:AAPL", func(context.Context) (quote, error) {
		return quote{}, errors.New("down")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("miss", "stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("hit", "stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("expire", "stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("fetch_error", "stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(again.events.WithLabelValues("stale", "stock")))
}

func TestFetchSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c, _ := newTestCache(t, WithTracerProvider(tp))
	_, _ = For[quote](c).GetOrFetch(t.Context(), "details:AAPL", func(context.Context) (quote, error) {
		return quote{}, errors.New("404")
	})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "cache.fetch", spans[0].Name())
	assert.Equal(t, "details:AAPL", spans[0].Attributes()[0].Value.AsString())
	assert.Len(t, spans[0].Events(), 1, "fetch error is recorded")
}

func TestResource(t *testing.T) {
	assert.Equal(t, "historical", Resource("historical:AAPL:1mo"))
	assert.Equal(t, "overview", Resource("overview"))
}

func TestPersistentBackendSharesEntries(t *testing.T) {
	b, err := backend.OpenBadger("")
	require.NoError(t, err)

	first := New(b)
	require.NoError(t, For[quote](first).Set(t.Context(), "overview", quote{Price: 5}))

	second := New(b)
	t.Cleanup(func() { _ = second.Close() })
	v, ok := For[quote](second).Get(t.Context(), "overview")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Price)
}
