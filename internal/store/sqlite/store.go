// Package sqlite is the durable store for daily OHLC history, finalized
// intraday sessions and symbol metadata. Every write is an upsert keyed by
// its natural key, so repeated writes of the same data are idempotent.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	Path string // database file, e.g. "data/market.db"
}

// Store implements model.HistoryStore, model.SessionStore and
// model.SymbolStore.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens the database in WAL mode and creates the schema.
func Open(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single connection: writes are serialized, upserts need no extra locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite opened", "component", "sqlite", "path", cfg.Path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_bars (
			symbol   TEXT NOT NULL,
			date     TEXT NOT NULL,
			open     REAL NOT NULL,
			high     REAL NOT NULL,
			low      REAL NOT NULL,
			close    REAL NOT NULL,
			volume   REAL NOT NULL DEFAULT 0,
			turnover REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			symbol       TEXT    NOT NULL,
			session_date TEXT    NOT NULL,
			state        TEXT    NOT NULL,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (symbol, session_date)
		);

		CREATE TABLE IF NOT EXISTS session_points (
			symbol       TEXT    NOT NULL,
			session_date TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			price        REAL    NOT NULL,
			volume       REAL    NOT NULL DEFAULT 0,
			filled       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, session_date, ts)
		);

		CREATE TABLE IF NOT EXISTS symbols (
			symbol   TEXT PRIMARY KEY,
			name     TEXT NOT NULL DEFAULT '',
			exchange TEXT NOT NULL DEFAULT '',
			kind     TEXT NOT NULL DEFAULT 'equity'
		);
	`)
	return err
}

// ── History ──

// LastCloseBefore returns the newest daily bar with date < before.
func (s *Store) LastCloseBefore(ctx context.Context, symbol string, before time.Time) (model.DailyBar, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume, turnover
		FROM daily_bars
		WHERE symbol = ? AND date < ?
		ORDER BY date DESC
		LIMIT 1
	`, symbol, markethours.DateKey(before))

	bar, err := scanBar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DailyBar{}, false, nil
	}
	if err != nil {
		return model.DailyBar{}, false, fmt.Errorf("sqlite last close %s: %w", symbol, err)
	}
	return bar, true, nil
}

// ReadDaily returns bars with from <= date <= to, oldest first.
func (s *Store) ReadDaily(ctx context.Context, symbol string, from, to time.Time) ([]model.DailyBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume, turnover
		FROM daily_bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, markethours.DateKey(from), markethours.DateKey(to))
	if err != nil {
		return nil, fmt.Errorf("sqlite query daily_bars: %w", err)
	}
	defer rows.Close()

	var bars []model.DailyBar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan daily_bars: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// UpsertDaily inserts or replaces bars in a single transaction.
func (s *Store) UpsertDaily(ctx context.Context, bars []model.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO daily_bars (symbol, date, open, high, low, close, volume, turnover)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, b.Symbol, markethours.DateKey(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume, b.Turnover); err != nil {
				return fmt.Errorf("upsert bar %s: %w", b.Symbol, err)
			}
		}
		return nil
	})
}

// ── Sessions ──

// UpsertSession writes the session header and every point, replacing
// existing rows with the same key.
func (s *Store) UpsertSession(ctx context.Context, series model.IntradaySeries) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO sessions (symbol, session_date, state, updated_at)
			VALUES (?, ?, ?, ?)
		`, series.Symbol, series.SessionDate, string(series.State), time.Now().Unix()); err != nil {
			return fmt.Errorf("upsert session header: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO session_points (symbol, session_date, ts, price, volume, filled)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range series.Points {
			if _, err := stmt.ExecContext(ctx, series.Symbol, series.SessionDate, p.TS.Unix(), p.Price, p.Volume, p.Filled); err != nil {
				return fmt.Errorf("upsert session point: %w", err)
			}
		}
		return nil
	})
}

// ReadSession loads one persisted session with its points ordered by time.
func (s *Store) ReadSession(ctx context.Context, symbol, date string) (model.IntradaySeries, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE symbol = ? AND session_date = ?`,
		symbol, date,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IntradaySeries{}, false, nil
	}
	if err != nil {
		return model.IntradaySeries{}, false, fmt.Errorf("sqlite read session %s %s: %w", symbol, date, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price, volume, filled
		FROM session_points
		WHERE symbol = ? AND session_date = ?
		ORDER BY ts ASC
	`, symbol, date)
	if err != nil {
		return model.IntradaySeries{}, false, fmt.Errorf("sqlite query session_points: %w", err)
	}
	defer rows.Close()

	series := model.IntradaySeries{Symbol: symbol, SessionDate: date, State: model.SessionState(state)}
	for rows.Next() {
		var p model.SessionPoint
		var ts int64
		if err := rows.Scan(&ts, &p.Price, &p.Volume, &p.Filled); err != nil {
			return model.IntradaySeries{}, false, fmt.Errorf("sqlite scan session_points: %w", err)
		}
		p.TS = time.Unix(ts, 0).In(markethours.ICT)
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return model.IntradaySeries{}, false, err
	}
	return series, true, nil
}

// LatestSession loads the newest session with date <= onOrBefore.
func (s *Store) LatestSession(ctx context.Context, symbol, onOrBefore string) (model.IntradaySeries, bool, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_date FROM sessions
		WHERE symbol = ? AND session_date <= ?
		ORDER BY session_date DESC
		LIMIT 1
	`, symbol, onOrBefore).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IntradaySeries{}, false, nil
	}
	if err != nil {
		return model.IntradaySeries{}, false, fmt.Errorf("sqlite latest session %s: %w", symbol, err)
	}
	return s.ReadSession(ctx, symbol, date)
}

// ── Symbols ──

// LookupSymbols returns metadata for the known symbols among symbols.
func (s *Store) LookupSymbols(ctx context.Context, symbols []string) (map[string]model.SymbolMeta, error) {
	out := make(map[string]model.SymbolMeta, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	args := make([]any, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, name, exchange, kind FROM symbols WHERE symbol IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m model.SymbolMeta
		var kind string
		if err := rows.Scan(&m.Symbol, &m.Name, &m.Exchange, &kind); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		m.Kind = model.SymbolKind(kind)
		out[m.Symbol] = m
	}
	return out, rows.Err()
}

// UpsertSymbols inserts or replaces symbol metadata.
func (s *Store) UpsertSymbols(ctx context.Context, metas []model.SymbolMeta) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range metas {
			kind := m.Kind
			if kind == "" {
				kind = model.KindEquity
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO symbols (symbol, name, exchange, kind) VALUES (?, ?, ?, ?)`,
				m.Symbol, m.Name, m.Exchange, string(kind),
			); err != nil {
				return fmt.Errorf("upsert symbol %s: %w", m.Symbol, err)
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBar(sc scanner) (model.DailyBar, error) {
	var b model.DailyBar
	var date string
	if err := sc.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Turnover); err != nil {
		return model.DailyBar{}, err
	}
	d, err := markethours.ParseDateKey(date)
	if err != nil {
		return model.DailyBar{}, err
	}
	b.Date = d
	return b, nil
}
