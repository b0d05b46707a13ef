package market

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quoteserve/internal/cache"
	"quoteserve/internal/logger"
	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
)

// FinalizeDay persists day's session for each symbol from the bar feed
// and any samples already collected, and returns the symbols finalized.
// Repeating it for the same day rewrites identical series.
func (s *Service) FinalizeDay(ctx context.Context, day time.Time, symbols []string) ([]string, error) {
	date := markethours.DateKey(day)

	// Today's quotes carry the day's volume and turnover totals.
	var quotes map[string]model.Quote
	if date == markethours.DateKey(markethours.LastTradingDay(s.now())) {
		quotes, _ = s.quotes(ctx, symbols)
	}

	var done []string
	var errs []error
	for _, sym := range symbols {
		var q *model.Quote
		if qq, ok := quotes[sym]; ok && !qq.Stale {
			q = &qq
		}
		if _, err := s.finalizeFromFeed(ctx, sym, day, q); err != nil {
			errs = append(errs, err)
			continue
		}
		done = append(done, sym)
		s.Cache.Delete(ctx, cache.Key(NSIntraday, sym+":"+date), cache.Key(NSLive, sym+":"+date), cache.Key(NSSparkline, sym))
	}
	return done, errors.Join(errs...)
}

// RunFinalizer finalizes the day's sessions once FinalizeGrace has passed
// after close on a trading day, checking every interval. Symbols that fail are retried on
// later ticks until the date changes. Blocks until ctx is cancelled.
func (s *Service) RunFinalizer(ctx context.Context, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var date string
	var pending []string
	check := func() {
		now := s.now()
		if !markethours.IsAfterClose(now) || !s.settled(now, now) {
			return
		}
		if today := markethours.DateKey(now); today != date {
			date = today
			pending = append([]string(nil), symbols...)
		}
		if len(pending) == 0 {
			return
		}

		ctx := logger.WithTraceID(ctx, logger.GenerateTraceID("finalize "+date, now))
		done, err := s.FinalizeDay(ctx, now, pending)
		if err != nil {
			slog.Warn("end of day finalize incomplete", logger.LogWithTrace(ctx, "component", "finalizer", "date", date, "error", err)...)
		}
		pending = without(pending, done)
		slog.Info("end of day finalize", logger.LogWithTrace(ctx, "component", "finalizer", "date", date,
			"finalized", len(done), "pending", len(pending))...)
		if len(pending) == 0 {
			s.Builder.Evict(3)
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func without(all, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := all[:0]
	for _, s := range all {
		if !skip[s] {
			out = append(out, s)
		}
	}
	return out
}
