// Package normalize turns provider-native samples into canonical quote
// fields. The unit-scale and turnover-magnitude heuristics live only here so
// they can be replaced once providers report their units.
package normalize

import (
	"github.com/shopspring/decimal"

	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

// Normalizer converts raw provider data into canonical units.
type Normalizer interface {
	Normalize(s model.ProviderSample) model.PartialQuote
	NormalizeBars(bars []model.RawBar) []model.SessionPoint
}

// Config holds the heuristic thresholds.
type Config struct {
	// ScaleThreshold: a price above it is taken to be raw VND and is
	// divided by 1000.
	ScaleThreshold float64
	// TurnoverThreshold: raw turnover at or above it is raw VND; below it
	// the value is taken to be in thousands.
	TurnoverThreshold float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{ScaleThreshold: 5000, TurnoverThreshold: 1e9}
}

var (
	thousand = decimal.NewFromInt(1000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// Heuristic is the threshold-based Normalizer.
type Heuristic struct {
	scale    decimal.Decimal
	turnover decimal.Decimal
}

// New creates a Heuristic normalizer. Zero thresholds take the defaults.
func New(cfg Config) *Heuristic {
	def := DefaultConfig()
	if cfg.ScaleThreshold <= 0 {
		cfg.ScaleThreshold = def.ScaleThreshold
	}
	if cfg.TurnoverThreshold <= 0 {
		cfg.TurnoverThreshold = def.TurnoverThreshold
	}
	return &Heuristic{
		scale:    decimal.NewFromFloat(cfg.ScaleThreshold),
		turnover: decimal.NewFromFloat(cfg.TurnoverThreshold),
	}
}

// Normalize converts one sample. Fields the provider omitted stay nil.
// One scale decision covers price, reference, ceiling and floor so their
// ratios are preserved.
func (h *Heuristic) Normalize(s model.ProviderSample) model.PartialQuote {
	raw := s.Raw
	divide := h.needsDivide(s.Unit, raw)

	pq := model.PartialQuote{
		Symbol:         s.Symbol,
		Provider:       s.Provider,
		AsOf:           s.FetchedAt,
		Price:          h.price(raw.Price, divide),
		ReferencePrice: h.price(raw.Reference, divide),
		Ceiling:        h.price(raw.Ceiling, divide),
		Floor:          h.price(raw.Floor, divide),
		TurnoverValue:  h.Turnover(raw.Turnover),
	}
	if raw.Volume.Valid && !raw.Volume.Decimal.IsNegative() {
		pq.Volume = model.Float(raw.Volume.Decimal.InexactFloat64())
	}
	return pq
}

// NormalizeResult converts every sample of a usable result.
func (h *Heuristic) NormalizeResult(r provider.Result) []model.PartialQuote {
	if !r.Usable() {
		return nil
	}
	out := make([]model.PartialQuote, 0, len(r.Samples))
	for _, s := range r.Samples {
		out = append(out, h.Normalize(s))
	}
	return out
}

// NormalizeBars converts provider bars to session points. Bars with a
// non-positive close are dropped.
func (h *Heuristic) NormalizeBars(bars []model.RawBar) []model.SessionPoint {
	out := make([]model.SessionPoint, 0, len(bars))
	for _, b := range bars {
		if !b.Close.IsPositive() {
			continue
		}
		p := b.Close
		if p.GreaterThan(h.scale) {
			p = p.Div(thousand)
		}
		vol := 0.0
		if b.Volume.IsPositive() {
			vol = b.Volume.InexactFloat64()
		}
		out = append(out, model.SessionPoint{TS: b.TS, Price: p.InexactFloat64(), Volume: vol})
	}
	return out
}

// Scale applies the unit-scale rule to a single price.
func (h *Heuristic) Scale(v decimal.Decimal) float64 {
	if v.GreaterThan(h.scale) {
		v = v.Div(thousand)
	}
	return v.InexactFloat64()
}

// Turnover converts a raw turnover to billions of VND. Values below the
// threshold are taken as thousands of VND. Negative values are dropped.
func (h *Heuristic) Turnover(v decimal.NullDecimal) *float64 {
	if !v.Valid || v.Decimal.IsNegative() {
		return nil
	}
	d := v.Decimal
	if d.LessThan(h.turnover) {
		d = d.Mul(thousand)
	}
	return model.Float(d.Div(billion).Round(6).InexactFloat64())
}

// needsDivide decides the scale of a sample from its declared unit or, when
// unknown, from its first positive price-like field.
func (h *Heuristic) needsDivide(unit model.Unit, raw model.RawQuote) bool {
	switch unit {
	case model.UnitPoints:
		return false
	case model.UnitRaw:
		return true
	}
	for _, f := range []decimal.NullDecimal{raw.Price, raw.Reference, raw.Ceiling, raw.Floor} {
		if f.Valid && f.Decimal.IsPositive() {
			return f.Decimal.GreaterThan(h.scale)
		}
	}
	return false
}

func (h *Heuristic) price(v decimal.NullDecimal, divide bool) *float64 {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	if divide {
		d = d.Div(thousand)
	}
	return model.Float(d.InexactFloat64())
}
