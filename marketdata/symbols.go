package marketdata

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSymbol is returned for empty or malformed ticker symbols.
	ErrInvalidSymbol = errors.New("marketdata: invalid symbol")
	// ErrInvalidPeriod is returned for history periods outside Periods.
	ErrInvalidPeriod = errors.New("marketdata: invalid period")
	// ErrNoData is returned when every symbol of an aggregate failed.
	ErrNoData = errors.New("marketdata: no data")
	// ErrNotFound is wrapped by providers for unknown symbols.
	ErrNotFound = errors.New("marketdata: not found")
	// ErrUnavailable is wrapped by providers when the source is throttling
	// or failing.
	ErrUnavailable = errors.New("marketdata: provider unavailable")
)

// DefaultPeriod is used when a history request names no period.
const DefaultPeriod = "1mo"

// Periods maps each supported history range to its bar interval.
var Periods = map[string]string{
	"1d":  "1m",
	"5d":  "5m",
	"1mo": "1d",
	"3mo": "1d",
	"6mo": "1d",
	"1y":  "1d",
	"2y":  "1wk",
	"5y":  "1wk",
}

// Interval returns the bar interval for period, substituting DefaultPeriod
// for an empty one.
func Interval(period string) (string, string, error) {
	if period == "" {
		period = DefaultPeriod
	}
	iv, ok := Periods[period]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return period, iv, nil
}

// NormalizeSymbol trims and upper-cases s. Symbols may contain letters,
// digits and the punctuation used by exchanges for share classes and
// indices ('.', '-', '^', '=').
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" || len(sym) > 16 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	for _, r := range sym {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
		}
	}
	return sym, nil
}

// PopularSymbols are shown on the market overview.
var PopularSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META", "NVDA", "JPM", "V", "JNJ"}

// Sector groups the heatmap listings of one industry sector.
type Sector struct {
	Name    string
	Symbols []string
}

// Sectors is the heatmap universe.
var Sectors = []Sector{
	{"Technology", []string{"AAPL", "MSFT", "GOOGL", "NVDA", "META", "AVGO", "ORCL", "CRM", "ADBE", "AMD", "CSCO", "ACN", "IBM", "INTU", "TXN", "QCOM", "AMAT", "MU", "INTC", "ADI"}},
	{"Financials", []string{"JPM", "BAC", "WFC", "GS", "MS", "BLK", "AXP", "COF", "USB", "PNC", "TFC", "BK", "CM", "BMO", "TD", "SCHW", "ICE", "CME", "CBOE", "PFG"}},
	{"Healthcare", []string{"JNJ", "UNH", "PFE", "MRK", "AZN", "BMY", "AMGN", "ABT", "GILD", "BIIB", "REGN", "ILMN", "VRTX", "EXAS", "ALGN", "DXCM", "VEEV", "FLWS", "MTCH", "HALO"}},
	{"Consumer Discretionary", []string{"HD", "MCD", "NKE", "LOW", "SBUX", "TJX", "BKNG", "ABNB", "CMG", "MAR", "HLT", "ORLY", "AZO", "YUM", "ROST", "DHI", "LEN", "PHM", "NVR", "POOL"}},
	{"Consumer Staples", []string{"WMT", "PG", "COST", "KO", "PEP", "PM", "MO", "MDLZ", "CL", "KMB", "GIS", "KHC", "HSY", "K", "CAG", "SJM", "CPB", "HRL", "MKC", "CHD"}},
	{"Energy", []string{"XOM", "CVX", "COP", "SLB", "EOG", "MPC", "PSX", "VLO", "OXY", "WMB", "KMI", "HES", "HAL", "BKR", "FANG", "DVN", "MRO", "APA", "CTRA", "OVV"}},
	{"Industrials", []string{"BA", "CAT", "MMM", "RTX", "GE", "HON", "ITW", "LMT", "NOC", "PCAR", "PWM", "RSG", "ROK", "SNA", "SWKS", "DOV", "EMR", "ETN", "GWW", "IR"}},
	{"Utilities", []string{"NEE", "SO", "DUK", "CEG", "SRE", "AEP", "VST", "D", "PCG", "PEG", "EXC", "XEL", "ED", "WEC", "ES", "AWK", "DTE", "PPL", "AEE", "CMS"}},
	{"Real Estate", []string{"AMT", "PLD", "EQIX", "PSA", "O", "SPG", "WELL", "DLR", "VTR", "SBAC", "WY", "INVH", "MAA", "ESS", "UDR", "AVB", "EQR", "REG", "BXP", "FRT"}},
	{"Communication Services", []string{"META", "GOOGL", "NFLX", "DIS", "CMCSA", "VZ", "T", "TMUS", "CHTR", "EA", "TTWO", "LYV", "NWSA", "NWS", "FOXA", "FOX", "OMC", "IPG", "MTCH", "PARA"}},
}

// sectorIndex maps each symbol to the first sector listing it.
func sectorIndex(sectors []Sector) ([]string, map[string]string) {
	var order []string
	idx := make(map[string]string)
	for _, s := range sectors {
		for _, sym := range s.Symbols {
			if _, ok := idx[sym]; ok {
				continue
			}
			idx[sym] = s.Name
			order = append(order, sym)
		}
	}
	return order, idx
}

// Cache keys. Resource prefixes match the rules in policy.Standard.
const (
	OverviewKey = "overview"
	HeatmapKey  = "heatmap"
)

// QuoteKey is the cache key of a single quote.
func QuoteKey(sym string) string { return "stock:" + sym }

// DetailsKey is the cache key of a company profile.
func DetailsKey(sym string) string { return "details:" + sym }

// HistoricalKey is the cache key of a price history.
func HistoricalKey(sym, period string) string { return "historical:" + sym + ":" + period }
