package marketrpc

import "github.com/Keksclan/tickercache/marketdata"

// SymbolRequest names one listing. Refresh bypasses fresh cache entries.
type SymbolRequest struct {
	Symbol  string `json:"symbol"`
	Refresh bool   `json:"refresh,omitempty"`
}

// SymbolsRequest names several listings.
type SymbolsRequest struct {
	Symbols []string `json:"symbols"`
	Refresh bool     `json:"refresh,omitempty"`
}

// AggregateRequest asks for a fixed aggregate (overview, heatmap).
type AggregateRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

// HistoricalRequest asks for a price history. An empty Period means 1mo.
type HistoricalRequest struct {
	Symbol  string `json:"symbol"`
	Period  string `json:"period,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
}

type QuoteResponse struct {
	Quote marketdata.Quote `json:"quote"`
}

type QuotesResponse struct {
	Quotes []marketdata.Quote `json:"quotes"`
}

type OverviewResponse struct {
	Summaries []marketdata.Summary `json:"summaries"`
}

type DetailsResponse struct {
	Details marketdata.Details `json:"details"`
}

type HistoricalResponse struct {
	Series marketdata.Series `json:"series"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// ClearRequest removes entries matching Pattern, or every entry when
// Pattern is empty.
type ClearRequest struct {
	Pattern string `json:"pattern,omitempty"`
}

// ClearResponse reports how many stored entries a pattern clear removed.
// Removed is -1 after a full clear.
type ClearResponse struct {
	Removed int `json:"removed"`
}

type ResolveTTLRequest struct {
	Keys []string `json:"keys"`
}

// KeyTTL is the TTL in force for one key, in milliseconds.
type KeyTTL struct {
	Key      string `json:"key"`
	TTLMilli int64  `json:"ttl_ms"`
}

type ResolveTTLResponse struct {
	TTLs []KeyTTL `json:"ttls"`
}

// message is a marker interface satisfied by every request and response of
// the Market service.
type message interface {
	isMarketMsg()
}

func (*SymbolRequest) isMarketMsg()      {}
func (*SymbolsRequest) isMarketMsg()     {}
func (*AggregateRequest) isMarketMsg()   {}
func (*HistoricalRequest) isMarketMsg()  {}
func (*QuoteResponse) isMarketMsg()      {}
func (*QuotesResponse) isMarketMsg()     {}
func (*OverviewResponse) isMarketMsg()   {}
func (*DetailsResponse) isMarketMsg()    {}
func (*HistoricalResponse) isMarketMsg() {}
func (*StatsRequest) isMarketMsg()       {}
func (*StatsResponse) isMarketMsg()      {}
func (*ClearRequest) isMarketMsg()       {}
func (*ClearResponse) isMarketMsg()      {}
func (*ResolveTTLRequest) isMarketMsg()  {}
func (*ResolveTTLResponse) isMarketMsg() {}
