// Package market is the serving layer: it answers market summary, intraday
// and watchlist requests from the tiered cache, the provider feeds and the
// historical store.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quoteserve/internal/breaker"
	"quoteserve/internal/cache"
	"quoteserve/internal/indicator"
	"quoteserve/internal/intraday"
	"quoteserve/internal/logger"
	"quoteserve/internal/markethours"
	"quoteserve/internal/metrics"
	"quoteserve/internal/model"
	"quoteserve/internal/normalize"
	"quoteserve/internal/provider"
	"quoteserve/internal/reconcile"
)

// Cache namespaces
const (
	NSQuote     = "quote"
	NSSparkline = "spark"
	NSIntraday  = "intraday" // finalized series by symbol:date
	NSLive      = "live"     // building snapshots by symbol:date
	NSRatios    = "ratios"
	NSTrend     = "trend"
	NSBatch     = "batch"
)

// ErrNoSeries is returned when no live or persisted intraday series exists.
var ErrNoSeries = errors.New("no intraday series")

// ErrNoSymbols is returned for a request without symbols.
var ErrNoSymbols = errors.New("no symbols requested")

// Config tunes the service.
type Config struct {
	QuoteTTL     time.Duration
	SparklineTTL time.Duration
	SessionTTL   time.Duration // persisted series; they never change
	RatiosTTL    time.Duration
	TrendTTL     time.Duration
	BatchTTL     time.Duration
	BatchTimeout time.Duration
	// FinalizeGrace delays finalizing a session after close so the bar
	// feed can publish its last minutes.
	FinalizeGrace time.Duration
	MaxPoints     int
	TrendWindow   int
	TrendBand     float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QuoteTTL:      15 * time.Second,
		SparklineTTL:  60 * time.Second,
		SessionTTL:    time.Hour,
		RatiosTTL:     6 * time.Hour,
		TrendTTL:      time.Hour,
		BatchTTL:      5 * time.Second,
		BatchTimeout:  8 * time.Second,
		FinalizeGrace: 5 * time.Minute,
		MaxPoints:     intraday.DefaultMaxPoints,
		TrendWindow:   indicator.DefaultWindow,
		TrendBand:     indicator.DefaultWidth,
	}
}

// Invalidator announces deleted cache keys to other instances.
type Invalidator interface {
	PublishInvalidation(ctx context.Context, keys []string) error
}

// Deps are the collaborators of a Service. Quotes lists the real-time
// feeds in priority order. Bars, Ratios, Symbols, Invalidator and Metrics
// may be nil.
type Deps struct {
	Cache       *cache.Tiered
	Breaker     *breaker.Breaker
	Quotes      []provider.QuoteSource
	Bars        provider.BarSource
	Ratios      provider.RatioSource
	Normalizer  normalize.Normalizer
	Reconciler  *reconcile.Reconciler
	Builder     *intraday.Builder
	History     model.HistoryStore
	Sessions    model.SessionStore
	Symbols     model.SymbolStore
	Executor    Executor
	Invalidator Invalidator
	Metrics     *metrics.Metrics
}

// Service implements the exposed market operations. Safe for concurrent use.
type Service struct {
	Deps
	cfg Config
	now func() time.Time
}

// New creates a Service. A nil Executor runs tasks synchronously.
func New(deps Deps, cfg Config) *Service {
	if deps.Executor == nil {
		deps.Executor = SyncExecutor{}
	}
	if cfg.MaxPoints < 2 {
		cfg.MaxPoints = intraday.DefaultMaxPoints
	}
	if cfg.TrendWindow < 1 {
		cfg.TrendWindow = indicator.DefaultWindow
	}
	return &Service{Deps: deps, cfg: cfg, now: time.Now}
}

// WithClock overrides time.Now and returns s.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetMarketSummary returns quotes with sparklines in the requested order.
// Symbols that resolve to no data are omitted.
func (s *Service) GetMarketSummary(ctx context.Context, symbols []string) ([]model.SummaryItem, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	defer s.Metrics.ObserveOp("summary", time.Now())
	s.Metrics.SetMarketOpen(markethours.IsMarketOpen(s.now()))

	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout())
	defer cancel()

	quotes, _ := s.quotes(ctx, symbols)
	sparks, done := gather(ctx, s.Executor, len(symbols), func(ctx context.Context, i int) []model.SparkPoint {
		if _, ok := quotes[symbols[i]]; !ok {
			return nil
		}
		return s.sparkline(ctx, symbols[i])
	})

	items := make([]model.SummaryItem, 0, len(symbols))
	for i, sym := range symbols {
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		spark := sparks[i]
		if !done[i] || spark == nil {
			spark = []model.SparkPoint{}
		}
		items = append(items, model.SummaryItem{
			Quote:     q,
			Change:    q.Change(),
			ChangePct: q.ChangePct(),
			Sparkline: spark,
		})
	}
	return items, nil
}

// GetIntradaySeries returns the live series while the session is open and
// the persisted series of the last trading day otherwise.
func (s *Service) GetIntradaySeries(ctx context.Context, symbol string) (model.IntradaySeries, error) {
	defer s.Metrics.ObserveOp("intraday", time.Now())
	now := s.now()

	if markethours.IsMarketOpen(now) {
		if series, ok := s.liveSeries(ctx, symbol, now); ok {
			return series, nil
		}
		// No live data yet: the previous session is the best available.
		return s.persistedSeries(ctx, symbol, markethours.LastTradingDay(markethours.TodayOpen(now).Add(-time.Minute)))
	}
	return s.persistedSeries(ctx, symbol, markethours.LastTradingDay(now))
}

// InvalidateCache removes full cache keys ("namespace:key") from both tiers
// and tells other instances to drop their local copies.
func (s *Service) InvalidateCache(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	s.Cache.Delete(ctx, keys...)
	if s.Invalidator != nil {
		if err := s.Invalidator.PublishInvalidation(ctx, keys); err != nil {
			slog.Warn("invalidation broadcast failed", logger.LogWithTrace(ctx, "component", "market", "error", err)...)
		}
	}
	slog.Info("cache invalidated", logger.LogWithTrace(ctx, "component", "market", "keys", len(keys))...)
}

// QuoteKey is the cache key of a symbol's quote.
func QuoteKey(symbol string) string { return cache.Key(NSQuote, symbol) }

// BatchKey is the cache key of a watchlist batch.
func BatchKey(batchID string) string { return cache.Key(NSBatch, batchID) }

// quotes resolves symbols from the quote cache, then from every feed in
// priority order. Unresolved symbols are returned in missing.
func (s *Service) quotes(ctx context.Context, symbols []string) (map[string]model.Quote, map[string]error) {
	quotes := make(map[string]model.Quote, len(symbols))
	var todo []string
	for _, sym := range symbols {
		if q, ok := cache.GetJSON[model.Quote](ctx, s.Cache, NSQuote, sym); ok {
			quotes[sym] = q
			continue
		}
		todo = append(todo, sym)
	}
	if len(todo) == 0 {
		return quotes, nil
	}

	results := make([]provider.Result, len(s.Quotes))
	var wg sync.WaitGroup
	for i, src := range s.Quotes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.fetchQuotes(ctx, src, todo)
		}()
	}
	wg.Wait()

	fresh, missing := s.Reconciler.ReconcileAll(ctx, todo, results)
	for sym, q := range fresh {
		quotes[sym] = q
		cache.SetJSON(ctx, s.Cache, NSQuote, sym, q, s.cfg.QuoteTTL)
	}
	for sym, err := range missing {
		s.Metrics.Unavailable()
		slog.Debug("symbol unresolved", logger.LogWithTrace(ctx, "component", "market", "symbol", sym, "error", err)...)
	}
	return quotes, missing
}

// fetchQuotes calls one feed through the breaker.
func (s *Service) fetchQuotes(ctx context.Context, src provider.QuoteSource, symbols []string) provider.Result {
	start := time.Now()
	var res provider.Result
	err := s.Breaker.Execute(ctx, src.Name(), func(ctx context.Context) error {
		res = provider.FetchQuotes(ctx, src, symbols)
		return res.Err
	})
	if errors.Is(err, breaker.ErrOpen) {
		s.Metrics.ProviderCall(src.Name(), "suppressed", 0)
		return provider.Failed(src.Name(), err)
	}
	s.Metrics.ProviderCall(src.Name(), res.Status.String(), time.Since(start))
	if res.Status == provider.StatusFailed {
		slog.Warn("provider call failed", logger.LogWithTrace(ctx, "component", "market", "provider", src.Name(), "error", res.Err)...)
	}
	return res
}

// fetchBars loads provider bars for one session day through the breaker
// and normalizes them.
func (s *Service) fetchBars(ctx context.Context, symbol string, day time.Time) ([]model.SessionPoint, error) {
	if s.Bars == nil {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoSeries)
	}
	start := time.Now()
	var bars []model.RawBar
	err := s.Breaker.Execute(ctx, s.Bars.Name(), func(ctx context.Context) error {
		var err error
		bars, err = s.Bars.FetchIntraday(ctx, symbol, day)
		return err
	})
	switch {
	case errors.Is(err, breaker.ErrOpen):
		s.Metrics.ProviderCall(s.Bars.Name(), "suppressed", 0)
		return nil, err
	case err != nil:
		outcome := provider.StatusFailed
		if provider.IsEmpty(err) {
			outcome = provider.StatusEmpty
		}
		s.Metrics.ProviderCall(s.Bars.Name(), outcome.String(), time.Since(start))
		return nil, err
	}
	s.Metrics.ProviderCall(s.Bars.Name(), provider.StatusOK.String(), time.Since(start))
	return s.Normalizer.NormalizeBars(bars), nil
}

// liveSeries returns the cached snapshot of today's building session, or
// refreshes it from the bar feed.
func (s *Service) liveSeries(ctx context.Context, symbol string, now time.Time) (model.IntradaySeries, bool) {
	key := symbol + ":" + markethours.DateKey(now)
	if series, ok := cache.GetJSON[model.IntradaySeries](ctx, s.Cache, NSLive, key); ok {
		return series, true
	}
	points, err := s.fetchBars(ctx, symbol, now)
	if err != nil {
		slog.Debug("live bars unavailable", logger.LogWithTrace(ctx, "component", "market", "symbol", symbol, "error", err)...)
	} else if err := s.Builder.Append(symbol, points...); err != nil && !errors.Is(err, intraday.ErrFinalized) {
		slog.Warn("append samples failed", logger.LogWithTrace(ctx, "component", "market", "symbol", symbol, "error", err)...)
	}
	series, ok := s.Builder.Snapshot(symbol, now)
	if ok {
		cache.SetJSON(ctx, s.Cache, NSLive, key, series, s.cfg.SparklineTTL)
	}
	return series, ok
}

// persistedSeries returns the finalized series of day or the newest one
// before it. A closed day that was never persisted is built from the bar
// feed and finalized on the spot once FinalizeGrace has passed; until then
// the building snapshot is served.
func (s *Service) persistedSeries(ctx context.Context, symbol string, day time.Time) (model.IntradaySeries, error) {
	date := markethours.DateKey(day)
	key := symbol + ":" + date
	if series, ok := cache.GetJSON[model.IntradaySeries](ctx, s.Cache, NSIntraday, key); ok && series.State == model.SessionFinalized {
		return series, nil
	}

	series, ok, err := s.Sessions.ReadSession(ctx, symbol, date)
	if err != nil {
		slog.Warn("session read failed", logger.LogWithTrace(ctx, "component", "market", "symbol", symbol, "date", date, "error", err)...)
	}
	if !ok {
		now := s.now()
		if !s.settled(day, now) {
			if live, ok := s.liveSeries(ctx, symbol, now); ok {
				return live, nil
			}
		} else if built, err := s.finalizeFromFeed(ctx, symbol, day, nil); err == nil {
			series, ok = built, true
		}
	}
	if !ok {
		series, ok, err = s.Sessions.LatestSession(ctx, symbol, date)
		if err != nil {
			return model.IntradaySeries{}, fmt.Errorf("load session %s: %w", symbol, err)
		}
	}
	if !ok {
		return model.IntradaySeries{}, fmt.Errorf("%s: %w", symbol, ErrNoSeries)
	}
	cache.SetJSON(ctx, s.Cache, NSIntraday, key, series, s.cfg.SessionTTL)
	return series, nil
}

// finalizeFromFeed fetches day's bars and finalizes the session.
func (s *Service) finalizeFromFeed(ctx context.Context, symbol string, day time.Time, q *model.Quote) (model.IntradaySeries, error) {
	points, err := s.fetchBars(ctx, symbol, day)
	if err != nil && !errors.Is(err, breaker.ErrOpen) && !provider.IsEmpty(err) {
		slog.Warn("session bars unavailable", logger.LogWithTrace(ctx, "component", "market", "symbol", symbol, "date", markethours.DateKey(day), "error", err)...)
	}
	return s.Builder.Finalize(ctx, intraday.FinalizeRequest{Symbol: symbol, Day: day, Points: points, Quote: q})
}

// sparkline returns the downsampled intraday series of symbol.
func (s *Service) sparkline(ctx context.Context, symbol string) []model.SparkPoint {
	if sp, ok := cache.GetJSON[[]model.SparkPoint](ctx, s.Cache, NSSparkline, symbol); ok {
		return sp
	}
	series, err := s.GetIntradaySeries(ctx, symbol)
	if err != nil {
		slog.Debug("no sparkline", logger.LogWithTrace(ctx, "component", "market", "symbol", symbol, "error", err)...)
		return []model.SparkPoint{}
	}
	sp := intraday.Downsample(series.Points, s.cfg.MaxPoints)
	if len(sp) > 0 {
		cache.SetJSON(ctx, s.Cache, NSSparkline, symbol, sp, s.cfg.SparklineTTL)
	}
	return sp
}

// settled reports whether day's session closed at least FinalizeGrace
// before now.
func (s *Service) settled(day, now time.Time) bool {
	return !now.Before(markethours.TodayClose(day).Add(s.cfg.FinalizeGrace))
}

func (s *Service) batchTimeout() time.Duration {
	if s.cfg.BatchTimeout <= 0 {
		return DefaultConfig().BatchTimeout
	}
	return s.cfg.BatchTimeout
}
