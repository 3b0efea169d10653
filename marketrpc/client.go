package marketrpc

import (
	"context"

	"github.com/Keksclan/tickercache/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// Client calls a remote Market service.
type Client struct {
	cc    grpc.ClientConnInterface
	retry retry.Config
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry retries calls that fail with Unavailable.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) {
		if cfg.Retryable == nil {
			cfg.Retryable = retry.OnCodes(codes.Unavailable)
		}
		c.retry = cfg
	}
}

// NewClient creates a Client over cc.
func NewClient(cc grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{cc: cc}
	for _, o := range opts {
		o(c)
	}
	return c
}

func invoke[Req, Resp any](ctx context.Context, c *Client, method string, req *Req, opts []grpc.CallOption) (*Resp, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (*Resp, error) {
		resp := new(Resp)
		if err := c.cc.Invoke(ctx, FullMethod(method), req, resp, opts...); err != nil {
			return nil, err
		}
		return resp, nil
	})
}

func (c *Client) GetQuote(ctx context.Context, req *SymbolRequest, opts ...grpc.CallOption) (*QuoteResponse, error) {
	return invoke[SymbolRequest, QuoteResponse](ctx, c, MethodGetQuote, req, opts)
}

func (c *Client) GetQuotes(ctx context.Context, req *SymbolsRequest, opts ...grpc.CallOption) (*QuotesResponse, error) {
	return invoke[SymbolsRequest, QuotesResponse](ctx, c, MethodGetQuotes, req, opts)
}

func (c *Client) GetOverview(ctx context.Context, req *AggregateRequest, opts ...grpc.CallOption) (*OverviewResponse, error) {
	return invoke[AggregateRequest, OverviewResponse](ctx, c, MethodGetOverview, req, opts)
}

func (c *Client) GetHeatmap(ctx context.Context, req *AggregateRequest, opts ...grpc.CallOption) (*QuotesResponse, error) {
	return invoke[AggregateRequest, QuotesResponse](ctx, c, MethodGetHeatmap, req, opts)
}

func (c *Client) GetDetails(ctx context.Context, req *SymbolRequest, opts ...grpc.CallOption) (*DetailsResponse, error) {
	return invoke[SymbolRequest, DetailsResponse](ctx, c, MethodGetDetails, req, opts)
}

func (c *Client) GetHistorical(ctx context.Context, req *HistoricalRequest, opts ...grpc.CallOption) (*HistoricalResponse, error) {
	return invoke[HistoricalRequest, HistoricalResponse](ctx, c, MethodGetHistorical, req, opts)
}

func (c *Client) CacheStats(ctx context.Context, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsRequest, StatsResponse](ctx, c, MethodCacheStats, &StatsRequest{}, opts)
}

func (c *Client) ClearCache(ctx context.Context, req *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error) {
	return invoke[ClearRequest, ClearResponse](ctx, c, MethodClearCache, req, opts)
}

func (c *Client) ResolveTTL(ctx context.Context, req *ResolveTTLRequest, opts ...grpc.CallOption) (*ResolveTTLResponse, error) {
	return invoke[ResolveTTLRequest, ResolveTTLResponse](ctx, c, MethodResolveTTL, req, opts)
}
