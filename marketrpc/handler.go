package marketrpc

import (
	"context"
	"errors"

	"github.com/Keksclan/tickercache/breaker"
	"github.com/Keksclan/tickercache/contextx"
	"github.com/Keksclan/tickercache/internal/logging"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/pattern"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewHandler returns a Handler serving svc and its cache.
func NewHandler(svc *marketdata.Service, log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &handler{svc: svc, log: log}
}

type handler struct {
	svc *marketdata.Service
	log *zap.Logger
}

func refresh(ctx context.Context, force bool) context.Context {
	if force {
		return contextx.WithForceRefresh(ctx)
	}
	return ctx
}

func (h *handler) GetQuote(ctx context.Context, req *SymbolRequest) (*QuoteResponse, error) {
	q, err := h.svc.Quote(refresh(ctx, req.Refresh), req.Symbol)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &QuoteResponse{Quote: q}, nil
}

func (h *handler) GetQuotes(ctx context.Context, req *SymbolsRequest) (*QuotesResponse, error) {
	qs, err := h.svc.Quotes(refresh(ctx, req.Refresh), req.Symbols)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &QuotesResponse{Quotes: qs}, nil
}

func (h *handler) GetOverview(ctx context.Context, req *AggregateRequest) (*OverviewResponse, error) {
	s, err := h.svc.Overview(refresh(ctx, req.Refresh))
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &OverviewResponse{Summaries: s}, nil
}

func (h *handler) GetHeatmap(ctx context.Context, req *AggregateRequest) (*QuotesResponse, error) {
	qs, err := h.svc.Heatmap(refresh(ctx, req.Refresh))
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &QuotesResponse{Quotes: qs}, nil
}

func (h *handler) GetDetails(ctx context.Context, req *SymbolRequest) (*DetailsResponse, error) {
	d, err := h.svc.Details(refresh(ctx, req.Refresh), req.Symbol)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &DetailsResponse{Details: d}, nil
}

func (h *handler) GetHistorical(ctx context.Context, req *HistoricalRequest) (*HistoricalResponse, error) {
	s, err := h.svc.Historical(refresh(ctx, req.Refresh), req.Symbol, req.Period)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &HistoricalResponse{Series: s}, nil
}

func (h *handler) CacheStats(ctx context.Context, _ *StatsRequest) (*StatsResponse, error) {
	st, err := h.svc.Cache().Stats(ctx)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &StatsResponse{Size: st.Size, Keys: st.Keys}, nil
}

func (h *handler) ClearCache(ctx context.Context, req *ClearRequest) (*ClearResponse, error) {
	log := logging.FromContext(ctx, h.log)
	actor, _ := contextx.ActorFromContext(ctx)

	if req.Pattern == "" {
		if err := h.svc.Cache().ClearAll(ctx); err != nil {
			return nil, h.toStatus(ctx, err)
		}
		log.Info("cache cleared", zap.String("actor", actor.Subject))
		return &ClearResponse{Removed: -1}, nil
	}

	n, err := h.svc.Cache().ClearPattern(ctx, req.Pattern)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	log.Info("cache pattern cleared",
		zap.String("actor", actor.Subject),
		zap.String("pattern", req.Pattern),
		zap.Int("removed", n),
	)
	return &ClearResponse{Removed: n}, nil
}

func (h *handler) ResolveTTL(_ context.Context, req *ResolveTTLRequest) (*ResolveTTLResponse, error) {
	out := make([]KeyTTL, len(req.Keys))
	for i, k := range req.Keys {
		out[i] = KeyTTL{Key: k, TTLMilli: h.svc.Cache().ResolveTTL(k).Milliseconds()}
	}
	return &ResolveTTLResponse{TTLs: out}, nil
}

// toStatus maps domain errors to gRPC status errors. Unexpected errors are
// logged and reported as Internal without detail.
func (h *handler) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, marketdata.ErrInvalidSymbol),
		errors.Is(err, marketdata.ErrInvalidPeriod),
		errors.Is(err, pattern.ErrMultipleWildcards):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, marketdata.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, marketdata.ErrNoData),
		errors.Is(err, marketdata.ErrUnavailable),
		errors.Is(err, breaker.ErrOpen):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	logging.FromContext(ctx, h.log).Error("request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}
