package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quoteserve/config"
	"quoteserve/internal/api"
	"quoteserve/internal/app"
	"quoteserve/internal/logger"
	"quoteserve/internal/markethours"
	"quoteserve/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Init("marketd", logger.Options{Level: logger.ParseLevel(cfg.Log.Level), File: cfg.Log.File})
	slog.Info("starting", "http", cfg.HTTP.Addr, "metrics", cfg.Metrics.Addr, "symbols", cfg.Summary.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Background loops ----
	go a.Cache.RunSweeper(ctx, time.Minute)
	go a.ListenInvalidations(ctx, 10*time.Second)
	go a.Service.RunFinalizer(ctx, cfg.Summary.Symbols, time.Minute)

	// ---- Health & metrics ----
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, a.Redis, a.SQLite.DB(), 10*time.Second, func(ctx context.Context) {
		health.SetOpenProviders(a.OpenProviders(ctx))
		a.Metrics.SetMarketOpen(markethours.IsMarketOpen(time.Now()))
	})
	metricsSrv := metrics.NewServer(cfg.Metrics.Addr, health, a.Registry)
	metricsSrv.Start()

	// ---- HTTP API + WebSocket stream ----
	hub := api.NewHub(a.Service, cfg.Summary.Symbols, cfg.Summary.StreamInterval, a.Metrics)
	go hub.Run(ctx)

	apiSrv := api.NewServer(cfg.HTTP.Addr, api.NewRouter(a.Service, hub, cfg.Summary.Symbols))
	apiSrv.Start()

	slog.Info("ready", "market", markethours.StatusString(time.Now()))

	<-sigCh
	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	slog.Info("stopped")
}
