package model

// SymbolKind distinguishes indices from listed equities.
type SymbolKind string

const (
	KindIndex  SymbolKind = "index"
	KindEquity SymbolKind = "equity"
)

// SymbolMeta is the static description of a tradeable symbol.
type SymbolMeta struct {
	Symbol   string     `json:"symbol"`
	Name     string     `json:"name"`
	Exchange string     `json:"exchange"` // HOSE, HNX, UPCOM
	Kind     SymbolKind `json:"kind"`
}

// Ratios are the financial ratios of an equity.
type Ratios struct {
	Symbol    string  `json:"symbol"`
	PE        float64 `json:"pe"`
	PB        float64 `json:"pb"`
	ROE       float64 `json:"roe"`
	ROA       float64 `json:"roa"`
	MarketCap float64 `json:"market_cap"` // billions of VND
}

// Trend is a coarse direction computed from recent daily closes.
type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
	TrendUnknown  Trend = "unknown"
)

// SummaryItem is one entry of the market summary.
type SummaryItem struct {
	Quote     Quote        `json:"quote"`
	Change    float64      `json:"change"`
	ChangePct float64      `json:"change_pct"`
	Sparkline []SparkPoint `json:"sparkline"`
}

// EnrichedRecord is one watchlist row.
type EnrichedRecord struct {
	Symbol    string       `json:"symbol"`
	Meta      SymbolMeta   `json:"meta"`
	Quote     Quote        `json:"quote"`
	ChangePct float64      `json:"change_pct"`
	Sparkline []SparkPoint `json:"sparkline"`
	Ratios    *Ratios      `json:"ratios,omitempty"`
	Trend     Trend        `json:"trend"`
	Degraded  bool         `json:"degraded,omitempty"` // per-symbol work failed; zero price, empty sparkline
}
