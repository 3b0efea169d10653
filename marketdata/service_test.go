package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/tickercache/backend"
	"github.com/Keksclan/tickercache/cache"
	"github.com/Keksclan/tickercache/clock"
	"github.com/Keksclan/tickercache/contextx"
	"github.com/Keksclan/tickercache/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves deterministic prices and counts calls per method.
type fakeProvider struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	price   float64
	history []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: map[string]int{}, fail: map[string]error{}, price: 100}
}

func (f *fakeProvider) record(method, sym string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method+":"+sym]++
	if err, ok := f.fail[sym]; ok {
		return 0, err
	}
	if err, ok := f.fail["*"]; ok {
		return 0, err
	}
	return f.price, nil
}

func (f *fakeProvider) count(method, sym string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+":"+sym]
}

func (f *fakeProvider) setFail(sym string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, sym)
		return
	}
	f.fail[sym] = err
}

func (f *fakeProvider) setPrice(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = p
}

func (f *fakeProvider) Quote(_ context.Context, sym string) (Quote, error) {
	p, err := f.record("quote", sym)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Symbol: sym, Name: sym + " Inc.", Price: p}, nil
}

func (f *fakeProvider) Details(_ context.Context, sym string) (Details, error) {
	p, err := f.record("details", sym)
	if err != nil {
		return Details{}, err
	}
	return Details{Symbol: sym, Name: sym + " Inc.", PreviousClose: p}, nil
}

func (f *fakeProvider) History(_ context.Context, sym, period, interval string) (Series, error) {
	_, err := f.record("history", sym)
	if err != nil {
		return Series{}, err
	}
	f.mu.Lock()
	f.history = append(f.history, period+"/"+interval)
	f.mu.Unlock()
	return Series{Timestamps: []int64{1, 2}, Close: []float64{1, 2}}, nil
}

var start = time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeProvider, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(start)
	c := cache.New(backend.NewMemory(), cache.WithClock(clk), cache.WithPolicy(policy.Standard()))
	t.Cleanup(func() { _ = c.Close() })
	p := newFakeProvider()
	opts = append([]Option{WithHeatmapBatches(defaultBatchSize, 0)}, opts...)
	return NewService(p, c, opts...), p, clk
}

func TestQuote_CachesPerSymbol(t *testing.T) {
	s, p, clk := newTestService(t)
	ctx := t.Context()

	q, err := s.Quote(ctx, " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Technology", q.Sector)

	_, err = s.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("quote", "AAPL"))

	// stock: prefix is 15s under the standard policy.
	clk.Advance(16 * time.Second)
	_, err = s.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("quote", "AAPL"))
}

func TestQuote_InvalidSymbol(t *testing.T) {
	s, p, _ := newTestService(t)
	for _, sym := range []string{"", "   ", "AA PL", "stock:*", "ABCDEFGHIJKLMNOPQ"} {
		_, err := s.Quote(t.Context(), sym)
		assert.ErrorIs(t, err, ErrInvalidSymbol, sym)
	}
	assert.Empty(t, p.calls)
}

func TestQuote_UnknownSectorIsOther(t *testing.T) {
	s, _, _ := newTestService(t)
	q, err := s.Quote(t.Context(), "ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, "Other", q.Sector)
}

func TestQuote_StaleFallback(t *testing.T) {
	s, p, clk := newTestService(t)
	ctx := t.Context()

	_, err := s.Quote(ctx, "MSFT")
	require.NoError(t, err)

	clk.Advance(time.Minute)
	p.setFail("MSFT", fmt.Errorf("throttled: %w", ErrUnavailable))
	p.setPrice(200)

	q, err := s.Quote(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Price)
}

func TestQuotes_SettledSemantics(t *testing.T) {
	s, p, _ := newTestService(t, WithConcurrency(2))
	p.setFail("BAD", ErrNotFound)

	qs, err := s.Quotes(t.Context(), []string{"MSFT", "BAD", "AAPL", ""})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "MSFT", qs[0].Symbol)
	assert.Equal(t, "AAPL", qs[1].Symbol)
}

func TestQuotes_AllFail(t *testing.T) {
	s, p, _ := newTestService(t)
	p.setFail("*", ErrUnavailable)

	_, err := s.Quotes(t.Context(), []string{"AAPL", "MSFT"})
	assert.ErrorIs(t, err, ErrNoData)

	qs, err := s.Quotes(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestOverview(t *testing.T) {
	s, p, _ := newTestService(t, WithPopular([]string{"AAPL", "MSFT"}))
	ctx := t.Context()

	sums, err := s.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, Summary{Symbol: "AAPL", Name: "AAPL Inc.", Price: 100}, sums[0])

	_, err = s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("quote", "AAPL"))

	st, err := s.Cache().Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.Keys, OverviewKey)
}

func TestOverview_EmptyIsNotCached(t *testing.T) {
	s, p, _ := newTestService(t, WithPopular([]string{"AAPL"}))
	p.setFail("*", ErrUnavailable)

	_, err := s.Overview(t.Context())
	require.ErrorIs(t, err, ErrNoData)

	st, err := s.Cache().Stats(t.Context())
	require.NoError(t, err)
	assert.NotContains(t, st.Keys, OverviewKey)
}

func TestHeatmap_BatchesAndSectors(t *testing.T) {
	sectors := []Sector{
		{"Technology", []string{"AAPL", "MSFT", "NVDA"}},
		{"Communication Services", []string{"META", "AAPL", "NFLX"}},
	}
	s, p, _ := newTestService(t, WithSectors(sectors), WithHeatmapBatches(2, time.Millisecond))
	p.setFail("NVDA", ErrNotFound)

	qs, err := s.Heatmap(t.Context())
	require.NoError(t, err)

	var got []string
	for _, q := range qs {
		got = append(got, q.Symbol+"/"+q.Sector)
	}
	assert.Equal(t, []string{
		"AAPL/Technology",
		"MSFT/Technology",
		"META/Communication Services",
		"NFLX/Communication Services",
	}, got)
	assert.Equal(t, 1, p.count("quote", "AAPL"), "duplicates across sectors are fetched once")
}

func TestHeatmap_DeadlineBetweenBatches(t *testing.T) {
	c := cache.New(backend.NewMemory(),
		cache.WithPolicy(policy.Standard()),
		cache.WithFetchTimeout(50*time.Millisecond),
	)
	t.Cleanup(func() { _ = c.Close() })
	p := newFakeProvider()
	sectors := []Sector{{"Technology", []string{"AAPL", "MSFT"}}}
	s := NewService(p, c, WithSectors(sectors), WithHeatmapBatches(1, time.Hour))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Heatmap(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "the caller stops waiting at its own deadline")

	// The shared fetch gives up at the cache's fetch timeout, inside the pause.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, p.count("quote", "AAPL"))
	assert.Zero(t, p.count("quote", "MSFT"))
	_, stored := cache.For[[]Quote](c).Peek(t.Context(), HeatmapKey)
	assert.False(t, stored)
}

func TestDetails(t *testing.T) {
	s, p, clk := newTestService(t)
	ctx := t.Context()

	d, err := s.Details(ctx, "jpm")
	require.NoError(t, err)
	assert.Equal(t, "JPM", d.Symbol)
	assert.Equal(t, "Financials", d.Sector)

	clk.Advance(20 * time.Second)
	_, err = s.Details(ctx, "JPM")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("details", "JPM"))

	// details:* is 30s.
	clk.Advance(20 * time.Second)
	_, err = s.Details(ctx, "JPM")
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("details", "JPM"))
}

func TestDetails_NotFoundWithoutFallback(t *testing.T) {
	s, p, _ := newTestService(t)
	p.setFail("NOPE", ErrNotFound)

	_, err := s.Details(t.Context(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistorical_PeriodsAndKeys(t *testing.T) {
	s, p, _ := newTestService(t)
	ctx := t.Context()

	ser, err := s.Historical(ctx, "aapl", "")
	require.NoError(t, err)
	assert.Equal(t, "1mo", ser.Period)
	assert.Equal(t, "1d", ser.Interval)
	assert.Equal(t, "AAPL", ser.Symbol)

	_, err = s.Historical(ctx, "AAPL", "5y")
	require.NoError(t, err)
	assert.Equal(t, []string{"1mo/1d", "5y/1wk"}, p.history)

	_, err = s.Historical(ctx, "AAPL", "10y")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	st, err := s.Cache().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"historical:AAPL:1mo", "historical:AAPL:5y"}, st.Keys)
}

func TestInvalidate(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := t.Context()

	for _, call := range []func() error{
		func() error { _, err := s.Quote(ctx, "AAPL"); return err },
		func() error { _, err := s.Details(ctx, "AAPL"); return err },
		func() error { _, err := s.Historical(ctx, "AAPL", "1y"); return err },
		func() error { _, err := s.Historical(ctx, "AAPL", "5d"); return err },
		func() error { _, err := s.Quote(ctx, "MSFT"); return err },
	} {
		require.NoError(t, call())
	}

	require.NoError(t, s.Invalidate(ctx, "aapl"))
	st, err := s.Cache().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stock:MSFT"}, st.Keys)

	assert.ErrorIs(t, s.Invalidate(ctx, "*"), ErrInvalidSymbol)
}

func TestForceRefresh(t *testing.T) {
	s, p, _ := newTestService(t)
	ctx := t.Context()

	_, err := s.Quote(ctx, "TSLA")
	require.NoError(t, err)

	p.setPrice(250)
	q, err := s.Quote(contextx.WithForceRefresh(ctx), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, 250.0, q.Price)
	assert.Equal(t, 2, p.count("quote", "TSLA"))

	boom := errors.New("down")
	p.setFail("TSLA", boom)
	_, err = s.Quote(contextx.WithForceRefresh(ctx), "TSLA")
	require.ErrorIs(t, err, boom)

	q, err = s.Quote(ctx, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, 250.0, q.Price, "failed refresh keeps the cached quote")
}
