package yahoo

import (
	"bytes"
	"encoding/json"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol                     string   `json:"symbol"`
	LongName                   string   `json:"longName"`
	ShortName                  string   `json:"shortName"`
	RegularMarketPrice         float64  `json:"regularMarketPrice"`
	PreviousClose              float64  `json:"previousClose"`
	ChartPreviousClose         float64  `json:"chartPreviousClose"`
	RegularMarketChange        float64  `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketVolume        int64    `json:"regularMarketVolume"`
	RegularMarketDayHigh       float64  `json:"regularMarketDayHigh"`
	RegularMarketDayLow        float64  `json:"regularMarketDayLow"`
	MarketCap                  float64  `json:"marketCap"`
	TrailingPE                 float64  `json:"trailingPE"`
}

type indicators struct {
	Quote []ohlcv `json:"quote"`
}

// ohlcv holds nullable points; Yahoo sends null for bars without trades.
type ohlcv struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
		Error  *apiError       `json:"error"`
	} `json:"quoteSummary"`
}

type summaryResult struct {
	Price struct {
		LongName                   string `json:"longName"`
		ShortName                  string `json:"shortName"`
		RegularMarketPreviousClose num    `json:"regularMarketPreviousClose"`
		RegularMarketOpen          num    `json:"regularMarketOpen"`
		RegularMarketDayHigh       num    `json:"regularMarketDayHigh"`
		RegularMarketDayLow        num    `json:"regularMarketDayLow"`
		RegularMarketVolume        num    `json:"regularMarketVolume"`
		MarketCap                  num    `json:"marketCap"`
	} `json:"price"`
	SummaryDetail struct {
		PreviousClose    num `json:"previousClose"`
		Open             num `json:"open"`
		Bid              num `json:"bid"`
		Ask              num `json:"ask"`
		DayHigh          num `json:"dayHigh"`
		DayLow           num `json:"dayLow"`
		FiftyTwoWeekHigh num `json:"fiftyTwoWeekHigh"`
		FiftyTwoWeekLow  num `json:"fiftyTwoWeekLow"`
		Volume           num `json:"volume"`
		AverageVolume    num `json:"averageVolume"`
		MarketCap        num `json:"marketCap"`
		Beta             num `json:"beta"`
		TrailingPE       num `json:"trailingPE"`
		DividendRate     num `json:"dividendRate"`
		DividendYield    num `json:"dividendYield"`
		TrailingYield    num `json:"trailingAnnualDividendYield"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics struct {
		Beta          num `json:"beta"`
		TrailingEps   num `json:"trailingEps"`
		AverageVolume num `json:"averageVolume"`
	} `json:"defaultKeyStatistics"`
	FinancialData struct {
		TargetMeanPrice num `json:"targetMeanPrice"`
	} `json:"financialData"`
	AssetProfile struct {
		LongBusinessSummary string `json:"longBusinessSummary"`
		Sector              string `json:"sector"`
		Industry            string `json:"industry"`
		Website             string `json:"website"`
		FullTimeEmployees   int64  `json:"fullTimeEmployees"`
		Country             string `json:"country"`
	} `json:"assetProfile"`
}

// num decodes both plain numbers and Yahoo's {"raw": 1.5, "fmt": "1.50"}
// objects. Empty objects and null decode to zero.
type num float64

func (n *num) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '{' {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*n = num(f)
		return nil
	}
	var obj struct {
		Raw float64 `json:"raw"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*n = num(obj.Raw)
	return nil
}

// firstNonZero returns the first non-zero value, mirroring how the
// dashboard prefers one Yahoo field over another.
func firstNonZero[T ~int64 | ~float64](vs ...T) T {
	for _, v := range vs {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref[T int64 | float64](vs []*T) []T {
	out := make([]T, len(vs))
	for i, v := range vs {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}
