// Package app wires the serving layer from configuration. Both the daemon
// and the one-shot finalizer build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"quoteserve/config"
	"quoteserve/internal/breaker"
	"quoteserve/internal/cache"
	"quoteserve/internal/intraday"
	"quoteserve/internal/market"
	"quoteserve/internal/metrics"
	"quoteserve/internal/model"
	"quoteserve/internal/normalize"
	"quoteserve/internal/provider"
	"quoteserve/internal/provider/ratios"
	"quoteserve/internal/provider/vci"
	"quoteserve/internal/provider/vps"
	"quoteserve/internal/reconcile"
	"quoteserve/internal/store/parquet"
	redisstore "quoteserve/internal/store/redis"
	sqlitestore "quoteserve/internal/store/sqlite"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Redis    *redisstore.Client
	SQLite   *sqlitestore.Store
	Cache    *cache.Tiered
	Breaker  *breaker.Breaker
	Service  *market.Service

	providers []interface{ Close() error }
}

// Build opens the stores, seeds symbol metadata and wires the service. An
// unreachable Redis is not fatal: the client reconnects lazily and the
// cache serves from L1 meanwhile.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewMetrics(a.Registry)

	// ---- Stores ----
	db, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.SQLite.Path})
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	a.SQLite = db
	if n, err := SeedSymbols(ctx, db, cfg.Symbols); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed symbols: %w", err)
	} else if n > 0 {
		slog.Info("symbol metadata seeded", "component", "app", "symbols", n)
	}

	redisCfg := redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	connectCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	a.Redis, err = redisstore.Connect(connectCtx, redisCfg)
	cancel()
	if err != nil {
		slog.Warn("redis unavailable at startup, continuing with L1 only", "component", "app", "addr", cfg.Redis.Addr, "error", err)
		a.Redis = redisstore.New(redisCfg)
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.BackfillTTL = cfg.Cache.L1BackfillTTL
	if cfg.Redis.ProbeCooldown > 0 {
		cacheCfg.ProbeCooldown = cfg.Redis.ProbeCooldown
	}
	a.Cache = cache.New(a.Redis, cacheCfg)
	a.Metrics.InstrumentCache(a.Cache)

	a.Breaker = breaker.New(a.Cache, breaker.Config{
		Cooldown:  cfg.Breaker.Cooldown,
		Threshold: cfg.Breaker.Threshold,
	})
	a.Metrics.InstrumentBreaker(a.Breaker)

	// ---- Providers ----
	vpsClient := vps.New(httpConfig(cfg.Providers.VPS))
	vciClient := vci.New(httpConfig(cfg.Providers.VCI))
	ratioClient := ratios.New(httpConfig(cfg.Providers.Ratios))
	a.providers = append(a.providers, vpsClient, vciClient, ratioClient)

	// ---- Pipeline ----
	norm := normalize.New(normalize.Config{
		ScaleThreshold:    cfg.Normalize.ScaleThreshold,
		TurnoverThreshold: cfg.Normalize.TurnoverThreshold,
	})
	rec := reconcile.New(norm, db)
	rec.OnFallback = func(symbol string) {
		a.Metrics.Fallback()
		slog.Debug("historical fallback", "component", "reconcile", "symbol", symbol)
	}

	var archiver model.SessionArchiver
	if cfg.Archive.Dir != "" {
		archiver = parquet.New(cfg.Archive.Dir)
	}
	builder := intraday.NewBuilder(db, db, archiver)
	builder.OnFinalize = func(symbol, date string) {
		a.Metrics.Finalized()
		slog.Info("session finalized", "component", "intraday", "symbol", symbol, "date", date)
	}

	svcCfg := market.DefaultConfig()
	svcCfg.QuoteTTL = cfg.Cache.QuoteTTL
	svcCfg.SparklineTTL = cfg.Cache.SparklineTTL
	svcCfg.BatchTTL = cfg.Cache.BatchTTL
	svcCfg.BatchTimeout = cfg.Orchestrator.BatchTimeout
	svcCfg.MaxPoints = cfg.Intraday.MaxPoints
	if cfg.Cache.RatiosTTL > 0 {
		svcCfg.RatiosTTL = cfg.Cache.RatiosTTL
	}

	a.Service = market.New(market.Deps{
		Cache:       a.Cache,
		Breaker:     a.Breaker,
		Quotes:      []provider.QuoteSource{vpsClient, vciClient},
		Bars:        vciClient,
		Ratios:      ratioClient,
		Normalizer:  norm,
		Reconciler:  rec,
		Builder:     builder,
		History:     db,
		Sessions:    db,
		Symbols:     db,
		Executor:    market.NewPoolExecutor(cfg.Orchestrator.Workers),
		Invalidator: a.Redis,
		Metrics:     a.Metrics,
	}, svcCfg)
	return a, nil
}

// ListenInvalidations applies cache invalidations from other instances to
// the local tier. It retries the subscription until ctx is cancelled.
func (a *App) ListenInvalidations(ctx context.Context, retry time.Duration) {
	for {
		err := a.Redis.ListenInvalidations(ctx, func(keys []string) {
			a.Cache.DeleteLocal(keys...)
		})
		if err == nil {
			slog.Info("listening for cache invalidations", "component", "cache", "channel", redisstore.InvalidateChannel)
			return
		}
		slog.Warn("invalidation subscribe failed, retrying", "component", "cache", "error", err, "retry", retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// OpenProviders lists providers whose breaker is open.
func (a *App) OpenProviders(ctx context.Context) []string {
	var open []string
	for _, name := range []string{provider.NameVPS, provider.NameVCI, provider.NameRatios} {
		if a.Breaker.State(ctx, name) == breaker.StateOpen {
			open = append(open, name)
		}
	}
	return open
}

// Close releases the providers and stores.
func (a *App) Close() error {
	var errs []error
	for _, p := range a.providers {
		errs = append(errs, p.Close())
	}
	errs = append(errs, a.Redis.Close(), a.SQLite.Close())
	return errors.Join(errs...)
}

// SymbolWriter stores symbol metadata.
type SymbolWriter interface {
	UpsertSymbols(ctx context.Context, metas []model.SymbolMeta) error
}

// SeedSymbols upserts the configured metadata and returns how many entries
// were written.
func SeedSymbols(ctx context.Context, w SymbolWriter, seeds []config.SymbolConfig) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	metas := make([]model.SymbolMeta, 0, len(seeds))
	for _, sc := range seeds {
		metas = append(metas, model.SymbolMeta{
			Symbol:   strings.ToUpper(strings.TrimSpace(sc.Symbol)),
			Name:     sc.Name,
			Exchange: strings.ToUpper(sc.Exchange),
			Kind:     model.SymbolKind(sc.Kind),
		})
	}
	if err := w.UpsertSymbols(ctx, metas); err != nil {
		return 0, err
	}
	return len(metas), nil
}

func httpConfig(p config.ProviderConfig) provider.HTTPConfig {
	return provider.HTTPConfig{
		BaseURL: p.BaseURL,
		Timeout: p.Timeout,
		RPS:     p.RPS,
		Burst:   p.Burst,
		Retries: 1,
	}
}
