package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the canonical normalized price/volume record for one symbol.
// Price, ReferencePrice, Ceiling and Floor share one unit: index points for
// indices, thousands of VND per share for equities. TurnoverValue is in
// billions of VND. A Quote is never mutated after construction.
type Quote struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	ReferencePrice float64   `json:"reference_price"`
	Ceiling        float64   `json:"ceiling"`
	Floor          float64   `json:"floor"`
	Volume         float64   `json:"volume"`
	TurnoverValue  float64   `json:"turnover_value"`
	AsOf           time.Time `json:"as_of"`
	Stale          bool      `json:"stale"`            // price/reference came from the historical store
	Source         string    `json:"source,omitempty"` // provider that supplied the price
}

// Change returns price - reference.
func (q Quote) Change() float64 {
	if q.ReferencePrice <= 0 {
		return 0
	}
	return q.Price - q.ReferencePrice
}

// ChangePct returns (price - reference) / reference * 100, or 0 when the
// reference price is not positive.
func (q Quote) ChangePct() float64 {
	if q.ReferencePrice <= 0 {
		return 0
	}
	return (q.Price - q.ReferencePrice) / q.ReferencePrice * 100
}

// JSON returns the JSON-encoded quote (ignoring errors for hot-path usage).
func (q *Quote) JSON() []byte {
	b, _ := json.Marshal(q)
	return b
}

// RawQuote carries provider-native numbers. A field that the provider did
// not send stays invalid; it is never coerced to zero.
type RawQuote struct {
	Price     decimal.NullDecimal
	Reference decimal.NullDecimal
	Ceiling   decimal.NullDecimal
	Floor     decimal.NullDecimal
	Volume    decimal.NullDecimal
	Turnover  decimal.NullDecimal
}

// Unit declares the price unit of a sample when the provider knows it.
type Unit int

const (
	UnitUnknown Unit = iota // decided by the normalizer's scale heuristic
	UnitPoints              // index points / thousands of VND
	UnitRaw                 // VND, 1000x points
)

// ProviderSample is one raw payload row from one upstream source.
type ProviderSample struct {
	Provider  string
	Symbol    string
	Unit      Unit
	Raw       RawQuote
	FetchedAt time.Time
}

// PartialQuote is a normalized quote in which any field may be absent.
// It is the unit the reconciler merges across providers.
type PartialQuote struct {
	Symbol         string
	Provider       string
	Price          *float64
	ReferencePrice *float64
	Ceiling        *float64
	Floor          *float64
	Volume         *float64
	TurnoverValue  *float64
	AsOf           time.Time
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
