package indicator

import "quoteserve/internal/model"

// Closes extracts close prices from bars (ordered by date), skipping
// non-positive values left by incomplete rows.
func Closes(bars []model.DailyBar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			out = append(out, b.Close)
		}
	}
	return out
}
