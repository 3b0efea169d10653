// Package yahoo is a marketdata.Provider backed by the public Yahoo Finance
// chart and quoteSummary endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/Keksclan/tickercache/internal/logging"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/upstream"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultChartBase   = "https://query1.finance.yahoo.com"
	DefaultSummaryBase = "https://query2.finance.yahoo.com"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	summaryModules = "price,summaryDetail,defaultKeyStatistics,financialData,assetProfile"
	maxBody        = 8 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Its own timeout, if any, applies on
// top of the guard's per-attempt timeout. The client is used as is, without
// the tracing transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTracerProvider sets the provider for outgoing request spans. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tp = tp }
}

// WithBaseURLs points the client at other hosts, typically a test server.
func WithBaseURLs(chart, summary string) Option {
	return func(c *Client) {
		c.chartBase = chart
		c.summaryBase = summary
	}
}

// WithGuard runs every request through g.
func WithGuard(g *upstream.Guard) Option {
	return func(c *Client) { c.guard = g }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client fetches quotes, profiles and price histories.
type Client struct {
	http        *http.Client
	chartBase   string
	summaryBase string
	userAgent   string
	guard       *upstream.Guard
	log         *zap.Logger
	tp          trace.TracerProvider
}

var _ marketdata.Provider = (*Client)(nil)

// New creates a Client. Without WithGuard requests are sent unguarded with
// a 10 second timeout. Without WithHTTPClient every request gets a client
// span, a child of the span in the request context.
func New(opts ...Option) *Client {
	c := &Client{
		chartBase:   DefaultChartBase,
		summaryBase: DefaultSummaryBase,
		userAgent:   DefaultUserAgent,
		guard:       &upstream.Guard{Timeout: 10 * time.Second},
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		var topts []otelhttp.Option
		if c.tp != nil {
			topts = append(topts, otelhttp.WithTracerProvider(c.tp))
		}
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport, topts...)}
	}
	return c
}

// Quote returns the latest quote for sym from the daily chart.
func (c *Client) Quote(ctx context.Context, sym string) (marketdata.Quote, error) {
	res, err := c.chart(ctx, sym, "1d", "1d")
	if err != nil {
		return marketdata.Quote{}, err
	}
	return quoteFrom(sym, res), nil
}

// History returns bars of the given interval covering period.
func (c *Client) History(ctx context.Context, sym, period, interval string) (marketdata.Series, error) {
	res, err := c.chart(ctx, sym, interval, period)
	if err != nil {
		return marketdata.Series{}, err
	}
	var q ohlcv
	if len(res.Indicators.Quote) > 0 {
		q = res.Indicators.Quote[0]
	}
	return marketdata.Series{
		Symbol:     sym,
		Period:     period,
		Interval:   interval,
		Timestamps: res.Timestamp,
		Open:       deref(q.Open),
		High:       deref(q.High),
		Low:        deref(q.Low),
		Close:      deref(q.Close),
		Volume:     deref(q.Volume),
	}, nil
}

// Details returns the company profile and key statistics of sym.
func (c *Client) Details(ctx context.Context, sym string) (marketdata.Details, error) {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s",
		c.summaryBase, url.PathEscape(sym), url.Values{"modules": {summaryModules}}.Encode())

	var resp summaryResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return marketdata.Details{}, err
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return marketdata.Details{}, fmt.Errorf("%w: %s", ErrNotFound, sym)
	}
	return detailsFrom(sym, resp.QuoteSummary.Result[0]), nil
}

func (c *Client) chart(ctx context.Context, sym, interval, rng string) (chartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		c.chartBase, url.PathEscape(sym), url.Values{"interval": {interval}, "range": {rng}}.Encode())

	var resp chartResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return chartResult{}, err
	}
	if len(resp.Chart.Result) == 0 {
		return chartResult{}, fmt.Errorf("%w: %s", ErrNotFound, sym)
	}
	return resp.Chart.Result[0], nil
}

// getJSON performs a guarded GET and decodes the body into dst.
func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	body, err := upstream.Do(ctx, c.guard, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		logging.FromContext(ctx, c.log).Debug("yahoo request failed", zap.String("url", u), zap.Error(err))
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("yahoo: decode %s: %w", u, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &transportError{err: err}
	}
	return body, nil
}

func quoteFrom(sym string, r chartResult) marketdata.Quote {
	m := r.Meta
	price := firstNonZero(m.RegularMarketPrice, m.PreviousClose)
	prev := firstNonZero(m.PreviousClose, m.ChartPreviousClose, price)
	change := firstNonZero(m.RegularMarketChange, price-prev)

	var pct float64
	switch {
	case m.RegularMarketChangePercent != nil:
		pct = *m.RegularMarketChangePercent
		if math.Abs(pct) < 1 {
			pct *= 100
		}
	case prev != 0:
		pct = change / prev * 100
	}

	var q ohlcv
	if len(r.Indicators.Quote) > 0 {
		q = r.Indicators.Quote[0]
	}
	return marketdata.Quote{
		Symbol:        sym,
		Name:          firstNonEmpty(m.LongName, m.ShortName, sym),
		Price:         price,
		Change:        change,
		ChangePercent: pct,
		Volume:        m.RegularMarketVolume,
		MarketCap:     m.MarketCap,
		PE:            m.TrailingPE,
		Open:          firstNonZero(firstPoint(q.Open), price),
		High:          firstNonZero(firstPoint(q.High), m.RegularMarketDayHigh, price),
		Low:           firstNonZero(firstPoint(q.Low), m.RegularMarketDayLow, price),
		PreviousClose: prev,
	}
}

func firstPoint(vs []*float64) float64 {
	if len(vs) == 0 || vs[0] == nil {
		return 0
	}
	return *vs[0]
}

func detailsFrom(sym string, r summaryResult) marketdata.Details {
	p, sd, ks, ap := r.Price, r.SummaryDetail, r.DefaultKeyStatistics, r.AssetProfile
	return marketdata.Details{
		Symbol:           sym,
		Name:             firstNonEmpty(p.LongName, p.ShortName, sym),
		PreviousClose:    float64(firstNonZero(sd.PreviousClose, p.RegularMarketPreviousClose)),
		Open:             float64(firstNonZero(sd.Open, p.RegularMarketOpen)),
		Bid:              float64(sd.Bid),
		Ask:              float64(sd.Ask),
		DayHigh:          float64(firstNonZero(sd.DayHigh, p.RegularMarketDayHigh)),
		DayLow:           float64(firstNonZero(sd.DayLow, p.RegularMarketDayLow)),
		FiftyTwoWeekHigh: float64(sd.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  float64(sd.FiftyTwoWeekLow),
		Volume:           int64(firstNonZero(p.RegularMarketVolume, sd.Volume)),
		AverageVolume:    int64(firstNonZero(sd.AverageVolume, ks.AverageVolume)),
		MarketCap:        float64(firstNonZero(p.MarketCap, sd.MarketCap)),
		Beta:             float64(firstNonZero(ks.Beta, sd.Beta)),
		PE:               float64(sd.TrailingPE),
		EPS:              float64(ks.TrailingEps),
		DividendRate:     float64(sd.DividendRate),
		DividendYield:    float64(firstNonZero(sd.DividendYield, sd.TrailingYield)),
		OneYearTarget:    float64(r.FinancialData.TargetMeanPrice),
		Description:      ap.LongBusinessSummary,
		Sector:           ap.Sector,
		Industry:         ap.Industry,
		Website:          ap.Website,
		Employees:        ap.FullTimeEmployees,
		Country:          ap.Country,
	}
}
