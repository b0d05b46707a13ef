package market

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"quoteserve/internal/breaker"
	"quoteserve/internal/cache"
	"quoteserve/internal/indicator"
	"quoteserve/internal/logger"
	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

// batchEntry is the cached result of one watchlist request.
type batchEntry struct {
	Symbols []string               `json:"symbols"`
	Records []model.EnrichedRecord `json:"records"`
}

// GetWatchlistDetail returns one enriched record per symbol, in request
// order. Shared inputs (metadata, quotes, trends) are fetched once; the
// per-symbol work fans out on the executor. A symbol that fails or does
// not finish before the batch timeout yields a degraded record. The whole
// batch is cached under batchID (or the symbol list when batchID is empty).
func (s *Service) GetWatchlistDetail(ctx context.Context, symbols []string, batchID string) ([]model.EnrichedRecord, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	defer s.Metrics.ObserveOp("watchlist", time.Now())

	key := batchID
	if key == "" {
		key = strings.Join(symbols, ",")
	}
	if e, ok := cache.GetJSON[batchEntry](ctx, s.Cache, NSBatch, key); ok && slices.Equal(e.Symbols, symbols) {
		s.Metrics.BatchHit()
		return e.Records, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, s.batchTimeout())
	defer cancel()

	metas := s.metas(batchCtx, symbols)
	quotes, _ := s.quotes(batchCtx, symbols)
	trends := s.trends(batchCtx, symbols)

	records, done := gather(batchCtx, s.Executor, len(symbols), func(ctx context.Context, i int) model.EnrichedRecord {
		sym := symbols[i]
		return s.enrich(ctx, sym, metas[sym], quotes, trends[sym])
	})

	complete := true
	for i, sym := range symbols {
		if !done[i] {
			records[i] = degraded(sym, metas[sym], trends[sym])
			complete = false
		}
		if records[i].Degraded {
			s.Metrics.Degraded()
		}
	}
	if complete {
		cache.SetJSON(ctx, s.Cache, NSBatch, key, batchEntry{Symbols: symbols, Records: records}, s.cfg.BatchTTL)
	} else {
		slog.Warn("watchlist batch timed out", logger.LogWithTrace(ctx, "component", "market", "batch", key, "symbols", len(symbols))...)
	}
	return records, nil
}

// enrich builds the record of one symbol. Only a missing quote degrades
// the record; ratios and sparkline are optional.
func (s *Service) enrich(ctx context.Context, symbol string, meta model.SymbolMeta, quotes map[string]model.Quote, trend model.Trend) model.EnrichedRecord {
	q, ok := quotes[symbol]
	if !ok {
		return degraded(symbol, meta, trend)
	}
	rec := model.EnrichedRecord{
		Symbol:    symbol,
		Meta:      meta,
		Quote:     q,
		ChangePct: q.ChangePct(),
		Sparkline: s.sparkline(ctx, symbol),
		Trend:     trend,
	}
	if meta.Kind != model.KindIndex {
		rec.Ratios = s.ratios(ctx, symbol)
	}
	return rec
}

func degraded(symbol string, meta model.SymbolMeta, trend model.Trend) model.EnrichedRecord {
	if trend == "" {
		trend = model.TrendUnknown
	}
	return model.EnrichedRecord{
		Symbol:    symbol,
		Meta:      meta,
		Quote:     model.Quote{Symbol: symbol},
		Sparkline: []model.SparkPoint{},
		Trend:     trend,
		Degraded:  true,
	}
}

// metas looks up metadata once per batch. Unknown symbols get defaults.
func (s *Service) metas(ctx context.Context, symbols []string) map[string]model.SymbolMeta {
	var known map[string]model.SymbolMeta
	if s.Symbols != nil {
		var err error
		known, err = s.Symbols.LookupSymbols(ctx, symbols)
		if err != nil {
			slog.Warn("symbol lookup failed", logger.LogWithTrace(ctx, "component", "market", "error", err)...)
		}
	}
	out := make(map[string]model.SymbolMeta, len(symbols))
	for _, sym := range symbols {
		if m, ok := known[sym]; ok {
			out[sym] = m
			continue
		}
		out[sym] = DefaultMeta(sym)
	}
	return out
}

var indexSymbols = map[string]bool{
	"VN30": true, "VN100": true, "HNX30": true, "VNMIDCAP": true, "VNSML": true,
}

// DefaultMeta describes a symbol missing from the symbol store.
func DefaultMeta(symbol string) model.SymbolMeta {
	kind := model.KindEquity
	if indexSymbols[symbol] || strings.HasSuffix(symbol, "INDEX") {
		kind = model.KindIndex
	}
	return model.SymbolMeta{Symbol: symbol, Name: symbol, Kind: kind}
}

// trends computes the trend of every symbol from stored daily closes.
func (s *Service) trends(ctx context.Context, symbols []string) map[string]model.Trend {
	out := make(map[string]model.Trend, len(symbols))
	if s.History == nil {
		for _, sym := range symbols {
			out[sym] = model.TrendUnknown
		}
		return out
	}
	to := markethours.Midnight(s.now())
	// Calendar days comfortably covering the window of trading days.
	from := to.AddDate(0, 0, -(s.cfg.TrendWindow*2 + 10))
	for _, sym := range symbols {
		if t, ok := cache.GetJSON[model.Trend](ctx, s.Cache, NSTrend, sym); ok {
			out[sym] = t
			continue
		}
		bars, err := s.History.ReadDaily(ctx, sym, from, to)
		if err != nil {
			slog.Warn("daily bars unavailable", logger.LogWithTrace(ctx, "component", "market", "symbol", sym, "error", err)...)
			out[sym] = model.TrendUnknown
			continue
		}
		t := indicator.Band{Window: s.cfg.TrendWindow, Width: s.cfg.TrendBand}.Classify(indicator.Closes(bars))
		out[sym] = t
		cache.SetJSON(ctx, s.Cache, NSTrend, sym, t, s.cfg.TrendTTL)
	}
	return out
}

// ratios returns cached or freshly fetched ratios, nil when unavailable.
func (s *Service) ratios(ctx context.Context, symbol string) *model.Ratios {
	if s.Ratios == nil {
		return nil
	}
	if r, ok := cache.GetJSON[model.Ratios](ctx, s.Cache, NSRatios, symbol); ok {
		return &r
	}
	start := time.Now()
	var r model.Ratios
	err := s.Breaker.Execute(ctx, s.Ratios.Name(), func(ctx context.Context) error {
		var err error
		r, err = s.Ratios.FetchRatios(ctx, symbol)
		return err
	})
	switch {
	case errors.Is(err, breaker.ErrOpen):
		s.Metrics.ProviderCall(s.Ratios.Name(), "suppressed", 0)
		return nil
	case provider.IsEmpty(err):
		s.Metrics.ProviderCall(s.Ratios.Name(), provider.StatusEmpty.String(), time.Since(start))
		return nil
	case err != nil:
		s.Metrics.ProviderCall(s.Ratios.Name(), provider.StatusFailed.String(), time.Since(start))
		slog.Warn("ratios unavailable", logger.LogWithTrace(ctx, "component", "market", "symbol", symbol, "error", err)...)
		return nil
	}
	s.Metrics.ProviderCall(s.Ratios.Name(), provider.StatusOK.String(), time.Since(start))
	cache.SetJSON(ctx, s.Cache, NSRatios, symbol, r, s.cfg.RatiosTTL)
	return &r
}
