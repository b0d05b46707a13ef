package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is the lifecycle state of an intraday series.
type SessionState string

const (
	SessionBuilding  SessionState = "building"
	SessionFinalized SessionState = "finalized"
)

// SessionPoint is one minute on the trading-session grid.
type SessionPoint struct {
	TS     time.Time `json:"ts"` // minute-aligned, exchange local time
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Filled bool      `json:"filled,omitempty"` // true if carried from a neighbouring trade
}

// IntradaySeries is one symbol's per-minute series for one session date.
// Points are ordered by TS and unique per minute.
type IntradaySeries struct {
	Symbol      string         `json:"symbol"`
	SessionDate string         `json:"session_date"` // "2006-01-02"
	State       SessionState   `json:"state"`
	Points      []SessionPoint `json:"points"`
}

// Last returns the final point of the series.
func (s *IntradaySeries) Last() (SessionPoint, bool) {
	if len(s.Points) == 0 {
		return SessionPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// LastTrade returns the last point that is a real trade (not filled).
func (s *IntradaySeries) LastTrade() (SessionPoint, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if !s.Points[i].Filled {
			return s.Points[i], true
		}
	}
	return s.Last()
}

// RawBar is one provider-native 1-minute bar.
type RawBar struct {
	TS     time.Time
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// SparkPoint is a compact chart point: unix seconds and price.
type SparkPoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// DailyBar is one row of the historical OHLC store.
type DailyBar struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"` // midnight, exchange local time
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Turnover float64   `json:"turnover"` // billions of VND
}
