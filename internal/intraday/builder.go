package intraday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
)

// ErrFinalized is returned when samples arrive for a closed session.
var ErrFinalized = errors.New("intraday: session already finalized")

// ErrNoSamples is returned when a session has nothing to finalize.
var ErrNoSamples = errors.New("intraday: no samples for session")

type sessionKey struct {
	symbol string
	date   string
}

// session is one (symbol, date) series under construction.
type session struct {
	day     time.Time
	state   model.SessionState
	samples map[int64]model.SessionPoint // minute unix -> latest sample
	final   model.IntradaySeries
}

// FinalizeRequest closes one session. Points are merged with any samples
// already appended. Quote, when set, supplies the day's totals.
type FinalizeRequest struct {
	Symbol string
	Day    time.Time
	Points []model.SessionPoint
	Quote  *model.Quote
}

// Builder tracks live sessions (Building) and persists them on close
// (Finalized). Safe for concurrent use.
type Builder struct {
	store    model.SessionStore
	history  model.HistoryStore    // optional: receives the day's bar
	archiver model.SessionArchiver // optional: cold storage

	mu       sync.Mutex
	sessions map[sessionKey]*session

	now func() time.Time

	// Callbacks (optional)
	OnFinalize func(symbol, date string)
}

// NewBuilder creates a Builder. history and archiver may be nil.
func NewBuilder(store model.SessionStore, history model.HistoryStore, archiver model.SessionArchiver) *Builder {
	return &Builder{
		store:    store,
		history:  history,
		archiver: archiver,
		sessions: make(map[sessionKey]*session),
		now:      time.Now,
	}
}

// WithClock overrides time.Now and returns b.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Append adds samples to the Building session of symbol. Each sample goes
// to the session of its own ICT date; samples for a finalized session are
// rejected with ErrFinalized.
func (b *Builder) Append(symbol string, points ...model.SessionPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range Dedupe(points) {
		s := b.sessionLocked(symbol, p.TS)
		if s.state == model.SessionFinalized {
			return fmt.Errorf("%s %s: %w", symbol, markethours.DateKey(p.TS), ErrFinalized)
		}
		s.samples[p.TS.Unix()] = p
	}
	return nil
}

// Snapshot returns the series of symbol on day built from appended samples
// up to now. A finalized session returns its persisted form.
func (b *Builder) Snapshot(symbol string, day time.Time) (model.IntradaySeries, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionKey{symbol, markethours.DateKey(day)}]
	if !ok {
		return model.IntradaySeries{}, false
	}
	if s.state == model.SessionFinalized {
		return s.final, true
	}
	points := Reindex(s.day, samplesOf(s), b.now())
	if len(points) == 0 {
		return model.IntradaySeries{}, false
	}
	return model.IntradaySeries{
		Symbol:      symbol,
		SessionDate: markethours.DateKey(s.day),
		State:       model.SessionBuilding,
		Points:      points,
	}, true
}

// State returns the lifecycle state of (symbol, day), if tracked.
func (b *Builder) State(symbol string, day time.Time) (model.SessionState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionKey{symbol, markethours.DateKey(day)}]
	if !ok {
		return "", false
	}
	return s.state, true
}

// Finalize builds the full session grid, upserts it into the session store,
// records the day's bar and archives the series. Finalizing an already
// finalized session re-upserts the same series, so repeated calls leave
// the store unchanged.
func (b *Builder) Finalize(ctx context.Context, req FinalizeRequest) (model.IntradaySeries, error) {
	date := markethours.DateKey(req.Day)
	key := sessionKey{req.Symbol, date}

	b.mu.Lock()
	s := b.sessionLocked(req.Symbol, req.Day)
	if s.state != model.SessionFinalized {
		for _, p := range Dedupe(req.Points) {
			if markethours.DateKey(p.TS) == date {
				s.samples[p.TS.Unix()] = p
			}
		}
	}
	var series model.IntradaySeries
	already := s.state == model.SessionFinalized
	if already {
		series = s.final
	} else {
		points := Reindex(s.day, samplesOf(s), time.Time{})
		if len(points) == 0 {
			delete(b.sessions, key)
			b.mu.Unlock()
			return model.IntradaySeries{}, fmt.Errorf("%s %s: %w", req.Symbol, date, ErrNoSamples)
		}
		series = model.IntradaySeries{
			Symbol:      req.Symbol,
			SessionDate: date,
			State:       model.SessionFinalized,
			Points:      points,
		}
	}
	b.mu.Unlock()

	if err := b.store.UpsertSession(ctx, series); err != nil {
		return model.IntradaySeries{}, fmt.Errorf("persist session %s %s: %w", req.Symbol, date, err)
	}

	b.mu.Lock()
	s.state = model.SessionFinalized
	s.final = series
	s.samples = nil
	b.mu.Unlock()

	if already {
		return series, nil
	}

	if b.history != nil {
		bar := DailyBar(series, markethours.Midnight(req.Day), req.Quote)
		if err := b.history.UpsertDaily(ctx, []model.DailyBar{bar}); err != nil {
			slog.Warn("daily bar upsert failed", "component", "intraday", "symbol", req.Symbol, "date", date, "error", err)
		}
	}
	if b.archiver != nil {
		if err := b.archiver.Archive(series); err != nil {
			slog.Warn("session archive failed", "component", "intraday", "symbol", req.Symbol, "date", date, "error", err)
		}
	}

	slog.Info("session finalized", "component", "intraday", "symbol", req.Symbol, "date", date, "points", len(series.Points))
	if b.OnFinalize != nil {
		b.OnFinalize(req.Symbol, date)
	}
	return series, nil
}

// Evict drops tracked sessions older than keep days before now.
func (b *Builder) Evict(keep int) int {
	cutoff := markethours.DateKey(markethours.Midnight(b.now()).AddDate(0, 0, -keep))
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k := range b.sessions {
		if k.date < cutoff {
			delete(b.sessions, k)
			n++
		}
	}
	return n
}

// DailyBar derives the day's OHLC row from real trades in series. If q is
// set its volume and turnover are used as the day's totals.
func DailyBar(series model.IntradaySeries, day time.Time, q *model.Quote) model.DailyBar {
	bar := model.DailyBar{Symbol: series.Symbol, Date: day}
	for _, p := range series.Points {
		if p.Filled {
			continue
		}
		if bar.Open == 0 {
			bar.Open, bar.High, bar.Low = p.Price, p.Price, p.Price
		}
		bar.High = max(bar.High, p.Price)
		bar.Low = min(bar.Low, p.Price)
		bar.Close = p.Price
		bar.Volume += p.Volume
	}
	if q != nil {
		if q.Volume > 0 {
			bar.Volume = q.Volume
		}
		bar.Turnover = q.TurnoverValue
	}
	return bar
}

// sessionLocked returns the session of symbol on t's date, creating it.
// Caller holds b.mu.
func (b *Builder) sessionLocked(symbol string, t time.Time) *session {
	key := sessionKey{symbol, markethours.DateKey(t)}
	s, ok := b.sessions[key]
	if !ok {
		s = &session{
			day:     markethours.Midnight(t),
			state:   model.SessionBuilding,
			samples: make(map[int64]model.SessionPoint),
		}
		b.sessions[key] = s
	}
	return s
}

func samplesOf(s *session) []model.SessionPoint {
	out := make([]model.SessionPoint, 0, len(s.samples))
	for _, p := range s.samples {
		out = append(out, p)
	}
	return out
}
