// Package marketrpc exposes the market data service and cache
// administration over gRPC as tickercache.Market. It uses
// [grpc.ServiceDesc] registration so that no protobuf code generation is
// required.
//
// Requests and responses are plain Go structs. The package registers a thin
// codec wrapper that JSON-encodes them while delegating all other messages
// to the standard proto codec. Import this package (or call [Register]) to
// activate the codec automatically.
package marketrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tickercache.Market"

// Method names.
const (
	MethodGetQuote      = "GetQuote"
	MethodGetQuotes     = "GetQuotes"
	MethodGetOverview   = "GetOverview"
	MethodGetHeatmap    = "GetHeatmap"
	MethodGetDetails    = "GetDetails"
	MethodGetHistorical = "GetHistorical"
	MethodCacheStats    = "CacheStats"
	MethodClearCache    = "ClearCache"
	MethodResolveTTL    = "ResolveTTL"
)

// FullMethod returns the "/service/method" path of a Market method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Handler is the interface that a Market service implementation must satisfy.
type Handler interface {
	GetQuote(ctx context.Context, req *SymbolRequest) (*QuoteResponse, error)
	GetQuotes(ctx context.Context, req *SymbolsRequest) (*QuotesResponse, error)
	GetOverview(ctx context.Context, req *AggregateRequest) (*OverviewResponse, error)
	GetHeatmap(ctx context.Context, req *AggregateRequest) (*QuotesResponse, error)
	GetDetails(ctx context.Context, req *SymbolRequest) (*DetailsResponse, error)
	GetHistorical(ctx context.Context, req *HistoricalRequest) (*HistoricalResponse, error)
	CacheStats(ctx context.Context, req *StatsRequest) (*StatsResponse, error)
	ClearCache(ctx context.Context, req *ClearRequest) (*ClearResponse, error)
	ResolveTTL(ctx context.Context, req *ResolveTTLRequest) (*ResolveTTLResponse, error)
}

// ServiceDesc is the grpc.ServiceDesc for the tickercache.Market service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetQuote, Handler.GetQuote),
		unary(MethodGetQuotes, Handler.GetQuotes),
		unary(MethodGetOverview, Handler.GetOverview),
		unary(MethodGetHeatmap, Handler.GetHeatmap),
		unary(MethodGetDetails, Handler.GetDetails),
		unary(MethodGetHistorical, Handler.GetHistorical),
		unary(MethodCacheStats, Handler.CacheStats),
		unary(MethodClearCache, Handler.ClearCache),
		unary(MethodResolveTTL, Handler.ResolveTTL),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tickercache/market.proto",
}

// unary builds the MethodDesc for one Handler method.
func unary[Req, Resp any](name string, call func(Handler, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Handler), ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, r any) (any, error) {
				return call(srv.(Handler), ctx, r.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// Register registers a Market service implementation on the given gRPC server.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
