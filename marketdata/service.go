// Package marketdata serves stock dashboard resources through the shared
// response cache.
//
// Every resource has its own key shape (see QuoteKey, DetailsKey,
// HistoricalKey, OverviewKey, HeatmapKey) and therefore its own TTL rule.
// Reads go through cache.Typed.Load, so a failing provider falls back to the
// last value seen for the key.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/Keksclan/tickercache/cache"
	"github.com/Keksclan/tickercache/contextx"
	"github.com/Keksclan/tickercache/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 8
	defaultBatchSize   = 50
	defaultBatchPause  = 100 * time.Millisecond
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithConcurrency bounds how many provider calls a multi-symbol request
// runs at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = max(n, 1) }
}

// WithHeatmapBatches sets how many symbols the heatmap fetches per batch and
// how long it pauses between batches.
func WithHeatmapBatches(size int, pause time.Duration) Option {
	return func(s *Service) {
		s.batchSize = max(size, 1)
		s.batchPause = pause
	}
}

// WithPopular replaces the overview symbols.
func WithPopular(symbols []string) Option {
	return func(s *Service) { s.popular = symbols }
}

// WithSectors replaces the heatmap universe.
func WithSectors(sectors []Sector) Option {
	return func(s *Service) { s.sectors = sectors }
}

// Service reads market data through the cache.
type Service struct {
	provider Provider
	c        *cache.Cache
	log      *zap.Logger

	quotes    *cache.Typed[Quote]
	lists     *cache.Typed[[]Quote]
	summaries *cache.Typed[[]Summary]
	details   *cache.Typed[Details]
	series    *cache.Typed[Series]

	concurrency int
	batchSize   int
	batchPause  time.Duration
	popular     []string
	sectors     []Sector
	sectorOf    map[string]string
	heatmap     []string
}

// NewService creates a Service backed by p and c.
func NewService(p Provider, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		provider:    p,
		c:           c,
		log:         zap.NewNop(),
		quotes:      cache.For[Quote](c),
		lists:       cache.For[[]Quote](c),
		summaries:   cache.For[[]Summary](c),
		details:     cache.For[Details](c),
		series:      cache.For[Series](c),
		concurrency: defaultConcurrency,
		batchSize:   defaultBatchSize,
		batchPause:  defaultBatchPause,
		popular:     PopularSymbols,
		sectors:     Sectors,
	}
	for _, o := range opts {
		o(s)
	}
	s.heatmap, s.sectorOf = sectorIndex(s.sectors)
	return s
}

// Cache returns the shared cache.
func (s *Service) Cache() *cache.Cache { return s.c }

// load reads key through view, or refreshes it when ctx asks for it.
func load[T any](ctx context.Context, s *Service, view *cache.Typed[T], key string, fetch cache.FetchFunc[T]) (T, error) {
	log := logging.FromContext(ctx, s.log)
	if contextx.ForceRefresh(ctx) {
		v, err := view.Refresh(ctx, key, fetch)
		if err != nil {
			log.Warn("forced refresh failed", zap.String("key", key), zap.Error(err))
		}
		return v, err
	}
	res, err := view.Load(ctx, key, fetch)
	if err != nil {
		return res.Value, err
	}
	log.Debug("market data loaded", zap.String("key", key), zap.Stringer("source", res.Source))
	return res.Value, nil
}

// Quote returns the latest quote for sym.
func (s *Service) Quote(ctx context.Context, sym string) (Quote, error) {
	sym, err := NormalizeSymbol(sym)
	if err != nil {
		return Quote{}, err
	}
	return load(ctx, s, s.quotes, QuoteKey(sym), func(ctx context.Context) (Quote, error) {
		q, err := s.provider.Quote(ctx, sym)
		if err != nil {
			return Quote{}, err
		}
		if q.Sector == "" {
			q.Sector = s.sectorName(sym)
		}
		return q, nil
	})
}

// Quotes returns quotes for every symbol that could be loaded, in input
// order. Symbols that fail are logged and left out. ErrNoData is returned
// when symbols is non-empty and none could be loaded.
func (s *Service) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	if len(symbols) == 0 {
		return []Quote{}, nil
	}

	results := make([]*Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := s.Quote(gctx, sym)
			if err != nil {
				logging.FromContext(ctx, s.log).Debug("quote skipped", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Quote, 0, len(symbols))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// Overview returns summaries of the popular symbols.
func (s *Service) Overview(ctx context.Context) ([]Summary, error) {
	return load(ctx, s, s.summaries, OverviewKey, func(ctx context.Context) ([]Summary, error) {
		qs, err := s.Quotes(ctx, s.popular)
		if err != nil {
			return nil, err
		}
		out := make([]Summary, len(qs))
		for i, q := range qs {
			out[i] = Summarize(q)
		}
		return out, nil
	})
}

// Heatmap returns quotes for the whole sector universe, each tagged with
// its sector. Symbols are fetched in batches with a pause between batches.
func (s *Service) Heatmap(ctx context.Context) ([]Quote, error) {
	return load(ctx, s, s.lists, HeatmapKey, s.fetchHeatmap)
}

func (s *Service) fetchHeatmap(ctx context.Context) ([]Quote, error) {
	var out []Quote
	for start := 0; start < len(s.heatmap); start += s.batchSize {
		if start > 0 && s.batchPause > 0 {
			timer := time.NewTimer(s.batchPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		batch := s.heatmap[start:min(start+s.batchSize, len(s.heatmap))]
		qs, err := s.Quotes(ctx, batch)
		if err != nil && !errors.Is(err, ErrNoData) {
			return nil, err
		}
		for _, q := range qs {
			q.Sector = s.sectorName(q.Symbol)
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// Details returns the company profile of sym.
func (s *Service) Details(ctx context.Context, sym string) (Details, error) {
	sym, err := NormalizeSymbol(sym)
	if err != nil {
		return Details{}, err
	}
	return load(ctx, s, s.details, DetailsKey(sym), func(ctx context.Context) (Details, error) {
		d, err := s.provider.Details(ctx, sym)
		if err != nil {
			return Details{}, err
		}
		if d.Sector == "" {
			d.Sector = s.sectorName(sym)
		}
		return d, nil
	})
}

// Historical returns the price history of sym over period. An empty period
// means DefaultPeriod.
func (s *Service) Historical(ctx context.Context, sym, period string) (Series, error) {
	sym, err := NormalizeSymbol(sym)
	if err != nil {
		return Series{}, err
	}
	period, interval, err := Interval(period)
	if err != nil {
		return Series{}, err
	}
	return load(ctx, s, s.series, HistoricalKey(sym, period), func(ctx context.Context) (Series, error) {
		ser, err := s.provider.History(ctx, sym, period, interval)
		if err != nil {
			return Series{}, err
		}
		ser.Symbol, ser.Period, ser.Interval = sym, period, interval
		return ser, nil
	})
}

// Invalidate drops every cached resource of sym: its quote, details and all
// histories. Aggregates (overview, heatmap) are left to expire.
func (s *Service) Invalidate(ctx context.Context, sym string) error {
	sym, err := NormalizeSymbol(sym)
	if err != nil {
		return err
	}
	if err := s.c.Delete(ctx, QuoteKey(sym)); err != nil {
		return err
	}
	if err := s.c.Delete(ctx, DetailsKey(sym)); err != nil {
		return err
	}
	n, err := s.c.ClearPattern(ctx, HistoricalKey(sym, "*"))
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.log).Info("symbol invalidated", zap.String("symbol", sym), zap.Int("histories", n))
	return nil
}

func (s *Service) sectorName(sym string) string {
	if name, ok := s.sectorOf[sym]; ok {
		return name
	}
	return "Other"
}
