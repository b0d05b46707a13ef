package model

import (
	"context"
	"time"
)

//go:generate mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks

// ── Storage Port Interfaces ──
// These interfaces decouple the serving layer from concrete storage
// implementations (SQLite, Parquet). Tests inject in-memory versions.

// HistoryStore is the historical daily OHLC store.
type HistoryStore interface {
	// LastCloseBefore returns the most recent daily bar strictly before the
	// given day. ok is false when the store has no prior bar for symbol.
	LastCloseBefore(ctx context.Context, symbol string, before time.Time) (bar DailyBar, ok bool, err error)

	// ReadDaily returns bars with from <= date <= to ordered by date.
	ReadDaily(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error)

	// UpsertDaily inserts or replaces bars keyed by (symbol, date).
	UpsertDaily(ctx context.Context, bars []DailyBar) error
}

// SessionStore persists finalized intraday series keyed by (symbol, date).
type SessionStore interface {
	// UpsertSession writes every point of s, replacing any existing point
	// for the same (symbol, date, minute).
	UpsertSession(ctx context.Context, s IntradaySeries) error

	// ReadSession loads the series for one session date.
	ReadSession(ctx context.Context, symbol, date string) (IntradaySeries, bool, error)

	// LatestSession loads the newest persisted series with date <= onOrBefore.
	LatestSession(ctx context.Context, symbol, onOrBefore string) (IntradaySeries, bool, error)
}

// SymbolStore resolves static symbol metadata.
type SymbolStore interface {
	// LookupSymbols returns metadata for the symbols it knows; unknown
	// symbols are simply absent from the map.
	LookupSymbols(ctx context.Context, symbols []string) (map[string]SymbolMeta, error)
}

// SessionArchiver receives finalized series for cold storage.
type SessionArchiver interface {
	Archive(s IntradaySeries) error
}
