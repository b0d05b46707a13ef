// Package reconcile merges normalized quotes from several providers into one
// Quote per symbol, falling back to the historical store for a missing price
// or reference.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
	"quoteserve/internal/normalize"
	"quoteserve/internal/provider"
)

// ErrDataUnavailable means every provider and the historical fallback were
// exhausted for a symbol. Callers omit the symbol.
var ErrDataUnavailable = errors.New("no data for symbol")

// Reconciler merges provider results by priority.
type Reconciler struct {
	norm    normalize.Normalizer
	history model.HistoryStore
	now     func() time.Time

	// Callbacks (optional)
	OnFallback func(symbol string)
}

// New creates a Reconciler. history may be nil, which disables the fallback.
func New(norm normalize.Normalizer, history model.HistoryStore) *Reconciler {
	return &Reconciler{norm: norm, history: history, now: time.Now}
}

// WithClock overrides time.Now and returns r.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// merged tracks which fields have been accepted.
type merged struct {
	q                 model.Quote
	hasPrice, hasRef  bool
	hasCeil, hasFloor bool
	hasVol, hasTurn   bool
}

// Merge combines parts in priority order (index 0 first). The first value
// that is present and sane wins per field; later parts only fill gaps.
// ok reports whether both price and reference were resolved.
func Merge(symbol string, parts []model.PartialQuote) (q model.Quote, ok bool) {
	m := merge(symbol, parts)
	return m.q, m.hasPrice && m.hasRef
}

func merge(symbol string, parts []model.PartialQuote) merged {
	m := merged{q: model.Quote{Symbol: symbol}}
	for _, p := range parts {
		if !m.hasPrice && positive(p.Price) {
			m.q.Price = *p.Price
			m.q.Source = p.Provider
			m.q.AsOf = p.AsOf
			m.hasPrice = true
		}
		if !m.hasRef && positive(p.ReferencePrice) {
			m.q.ReferencePrice = *p.ReferencePrice
			m.hasRef = true
			if m.q.AsOf.IsZero() {
				m.q.AsOf = p.AsOf
			}
		}
		if !m.hasCeil && positive(p.Ceiling) {
			m.q.Ceiling = *p.Ceiling
			m.hasCeil = true
		}
		if !m.hasFloor && positive(p.Floor) {
			m.q.Floor = *p.Floor
			m.hasFloor = true
		}
		if !m.hasVol && nonNegative(p.Volume) {
			m.q.Volume = *p.Volume
			m.hasVol = true
		}
		if !m.hasTurn && nonNegative(p.TurnoverValue) {
			m.q.TurnoverValue = *p.TurnoverValue
			m.hasTurn = true
		}
	}
	return m
}

// Reconcile merges parts and, if price or reference is still unset, fills
// them from the historical store. The result is marked Stale when history
// supplied a value. Returns ErrDataUnavailable when nothing resolves.
func (r *Reconciler) Reconcile(ctx context.Context, symbol string, parts []model.PartialQuote) (model.Quote, error) {
	m := merge(symbol, parts)
	if m.hasPrice && m.hasRef {
		return m.q, nil
	}
	if r.history == nil {
		return model.Quote{}, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
	}

	if r.OnFallback != nil {
		r.OnFallback(symbol)
	}

	today := markethours.Midnight(r.now())
	refCutoff := today

	if !m.hasPrice {
		bar, ok, err := r.history.LastCloseBefore(ctx, symbol, today.AddDate(0, 0, 1))
		if err != nil {
			slog.Warn("historical fallback failed", "component", "reconcile", "symbol", symbol, "error", err)
			return model.Quote{}, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
		}
		if ok && bar.Close > 0 {
			m.q.Price = bar.Close
			m.q.AsOf = bar.Date
			m.q.Source = "history"
			m.q.Stale = true
			m.hasPrice = true
			refCutoff = markethours.Midnight(bar.Date)
			if !m.hasVol {
				m.q.Volume = bar.Volume
			}
			if !m.hasTurn {
				m.q.TurnoverValue = bar.Turnover
			}
		}
	}

	if !m.hasRef {
		prev, ok, err := r.history.LastCloseBefore(ctx, symbol, refCutoff)
		if err != nil {
			slog.Warn("historical fallback failed", "component", "reconcile", "symbol", symbol, "error", err)
		}
		switch {
		case err == nil && ok && prev.Close > 0:
			m.q.ReferencePrice = prev.Close
			m.hasRef = true
			m.q.Stale = true
			if m.q.AsOf.IsZero() {
				m.q.AsOf = prev.Date
			}
		case m.q.Stale:
			// Only one historical close exists: it is both price and reference.
			m.q.ReferencePrice = m.q.Price
			m.hasRef = true
		}
	}

	if !m.hasPrice || !m.hasRef {
		return model.Quote{}, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
	}
	return m.q, nil
}

// ReconcileAll normalizes results (highest priority first) and reconciles
// every symbol. Unresolved symbols are absent from quotes and present in
// missing with their error.
func (r *Reconciler) ReconcileAll(ctx context.Context, symbols []string, results []provider.Result) (quotes map[string]model.Quote, missing map[string]error) {
	bySymbol := make(map[string][]model.PartialQuote, len(symbols))
	for _, res := range results {
		if !res.Usable() {
			continue
		}
		for _, s := range res.Samples {
			bySymbol[s.Symbol] = append(bySymbol[s.Symbol], r.norm.Normalize(s))
		}
	}

	quotes = make(map[string]model.Quote, len(symbols))
	missing = make(map[string]error)
	for _, sym := range symbols {
		q, err := r.Reconcile(ctx, sym, bySymbol[sym])
		if err != nil {
			missing[sym] = err
			continue
		}
		quotes[sym] = q
	}
	return quotes, missing
}

func positive(v *float64) bool    { return v != nil && *v > 0 }
func nonNegative(v *float64) bool { return v != nil && *v >= 0 }
