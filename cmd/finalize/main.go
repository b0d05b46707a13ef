// Command finalize persists the canonical intraday series and daily bar of
// a closed session. It is the one-shot form of the daemon's end-of-day loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"quoteserve/config"
	"quoteserve/internal/app"
	"quoteserve/internal/logger"
	"quoteserve/internal/markethours"
)

func main() {
	dateStr := flag.String("date", "", "Session date YYYY-MM-DD (default: last trading day)")
	symbolsStr := flag.String("symbols", "", "Comma-separated symbols (default: summary.symbols)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Init("finalize", logger.Options{Level: logger.ParseLevel(cfg.Log.Level), File: cfg.Log.File})

	day := markethours.LastTradingDay(time.Now())
	if *dateStr != "" {
		if day, err = markethours.ParseDateKey(*dateStr); err != nil {
			slog.Error("bad -date", "error", err)
			os.Exit(2)
		}
	}
	if !markethours.IsTradingDay(day) {
		slog.Error("not a trading day", "date", markethours.DateKey(day))
		os.Exit(2)
	}
	symbols := cfg.Summary.Symbols
	if *symbolsStr != "" {
		symbols = config.ParseSymbols(*symbolsStr)
	}
	if len(symbols) == 0 {
		slog.Error("no symbols to finalize")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	start := time.Now()
	done, err := a.Service.FinalizeDay(ctx, day, symbols)
	slog.Info("finalize complete",
		"date", markethours.DateKey(day),
		"finalized", len(done),
		"requested", len(symbols),
		"elapsed", time.Since(start),
	)
	if err != nil {
		slog.Error("some symbols failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}
