// Package indicator derives the coarse watchlist trend from stored daily
// closes.
package indicator

import "quoteserve/internal/model"

// Band defaults: the last close against its 20-day mean, with ±1% treated
// as flat.
const (
	DefaultWindow = 20
	DefaultWidth  = 0.01
)

// Band classifies the latest close against the mean of the trailing
// Window closes. A close more than Width (a fraction of the mean) above the
// mean is up, more than Width below is down, anything else is sideways.
type Band struct {
	Window int
	Width  float64
}

// DefaultBand returns the 20-day ±1% band.
func DefaultBand() Band {
	return Band{Window: DefaultWindow, Width: DefaultWidth}
}

// Classify returns the trend of closes (oldest first). Fewer than Window
// closes, or a non-positive mean, gives TrendUnknown.
func (b Band) Classify(closes []float64) model.Trend {
	if b.Window < 1 || len(closes) < b.Window {
		return model.TrendUnknown
	}
	ma := NewMovingAverage(b.Window)
	for _, c := range closes[len(closes)-b.Window:] {
		ma.Add(c)
	}
	mean, ok := ma.Mean()
	if !ok || mean <= 0 {
		return model.TrendUnknown
	}
	last := closes[len(closes)-1]
	switch {
	case last > mean*(1+b.Width):
		return model.TrendUp
	case last < mean*(1-b.Width):
		return model.TrendDown
	default:
		return model.TrendSideways
	}
}
