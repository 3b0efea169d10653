package marketdata

import "context"

// Quote is a point-in-time snapshot of one listing.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"marketCap,omitempty"`
	PE            float64 `json:"pe,omitempty"`
	Sector        string  `json:"sector,omitempty"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PreviousClose float64 `json:"previousClose"`
}

// Summary is the reduced quote shown on the market overview.
type Summary struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
}

// Summarize reduces q to its overview fields.
func Summarize(q Quote) Summary {
	return Summary{
		Symbol:        q.Symbol,
		Name:          q.Name,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
	}
}

// Details is the company profile and key statistics of a listing.
type Details struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	PreviousClose    float64 `json:"previousClose"`
	Open             float64 `json:"open"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	DayHigh          float64 `json:"dayHigh"`
	DayLow           float64 `json:"dayLow"`
	FiftyTwoWeekHigh float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  float64 `json:"fiftyTwoWeekLow"`
	Volume           int64   `json:"volume"`
	AverageVolume    int64   `json:"averageVolume"`
	MarketCap        float64 `json:"marketCap"`
	Beta             float64 `json:"beta"`
	PE               float64 `json:"pe"`
	EPS              float64 `json:"eps"`
	DividendRate     float64 `json:"forwardDividend"`
	DividendYield    float64 `json:"dividendYield"`
	OneYearTarget    float64 `json:"oneYearTarget"`
	Description      string  `json:"description,omitempty"`
	Sector           string  `json:"sector,omitempty"`
	Industry         string  `json:"industry,omitempty"`
	Website          string  `json:"website,omitempty"`
	Employees        int64   `json:"fullTimeEmployees,omitempty"`
	Country          string  `json:"country,omitempty"`
}

// Series is a price history. Slices are index-aligned with Timestamps;
// points the provider could not price are zero.
type Series struct {
	Symbol     string    `json:"symbol"`
	Period     string    `json:"period"`
	Interval   string    `json:"interval"`
	Timestamps []int64   `json:"timestamps"`
	Open       []float64 `json:"open"`
	High       []float64 `json:"high"`
	Low        []float64 `json:"low"`
	Close      []float64 `json:"close"`
	Volume     []int64   `json:"volume"`
}

// Provider fetches market data from the source of truth. Implementations
// return ErrNotFound-wrapping errors for unknown symbols where they can
// tell.
type Provider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Details(ctx context.Context, symbol string) (Details, error)
	History(ctx context.Context, symbol, period, interval string) (Series, error)
}
