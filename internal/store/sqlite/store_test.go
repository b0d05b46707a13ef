package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "market.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, markethours.ICT)
}

func TestHistory_UpsertAndLastCloseBefore(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDaily(ctx, []model.DailyBar{
		{Symbol: "FPT", Date: date(2026, 2, 26), Open: 94, High: 96, Low: 93, Close: 95, Volume: 1e6, Turnover: 95},
		{Symbol: "FPT", Date: date(2026, 2, 27), Open: 95, High: 97, Low: 95, Close: 96.5, Volume: 2e6, Turnover: 193},
		{Symbol: "VNM", Date: date(2026, 2, 27), Open: 61, High: 62, Low: 60, Close: 61.2},
	}))

	bar, ok, err := s.LastCloseBefore(ctx, "FPT", date(2026, 3, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 96.5, bar.Close)
	assert.True(t, bar.Date.Equal(date(2026, 2, 27)))

	bar, ok, err = s.LastCloseBefore(ctx, "FPT", date(2026, 2, 27))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 95.0, bar.Close, "strictly before the given day")

	_, ok, err = s.LastCloseBefore(ctx, "FPT", date(2026, 2, 26))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.LastCloseBefore(ctx, "ZZZ", date(2026, 3, 2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistory_UpsertReplacesByKey(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	bar := model.DailyBar{Symbol: "HPG", Date: date(2026, 2, 27), Open: 27, High: 28, Low: 26, Close: 27.5}
	require.NoError(t, s.UpsertDaily(ctx, []model.DailyBar{bar}))
	bar.Close = 27.9
	require.NoError(t, s.UpsertDaily(ctx, []model.DailyBar{bar}))

	bars, err := s.ReadDaily(ctx, "HPG", date(2026, 2, 1), date(2026, 3, 1))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 27.9, bars[0].Close)
}

func TestHistory_ReadDailyRangeOrdered(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	var bars []model.DailyBar
	for d := 20; d >= 10; d-- {
		bars = append(bars, model.DailyBar{Symbol: "FPT", Date: date(2026, 2, d), Close: float64(d)})
	}
	require.NoError(t, s.UpsertDaily(ctx, bars))

	got, err := s.ReadDaily(ctx, "FPT", date(2026, 2, 12), date(2026, 2, 15))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 12.0, got[0].Close)
	assert.Equal(t, 15.0, got[3].Close)
}

func TestSessions_UpsertReadLatest(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	open := markethours.TodayOpen(date(2026, 2, 27))
	series := model.IntradaySeries{
		Symbol:      "VNINDEX",
		SessionDate: "2026-02-27",
		State:       model.SessionFinalized,
		Points: []model.SessionPoint{
			{TS: open, Price: 1870, Volume: 10, Filled: false},
			{TS: open.Add(time.Minute), Price: 1870, Filled: true},
			{TS: open.Add(2 * time.Minute), Price: 1879.13, Volume: 5},
		},
	}
	require.NoError(t, s.UpsertSession(ctx, series))
	require.NoError(t, s.UpsertSession(ctx, series), "second upsert is a no-op")

	got, ok, err := s.ReadSession(ctx, "VNINDEX", "2026-02-27")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, series, got)

	latest, ok, err := s.LatestSession(ctx, "VNINDEX", "2026-03-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-02-27", latest.SessionDate)

	_, ok, err = s.LatestSession(ctx, "VNINDEX", "2026-02-26")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.ReadSession(ctx, "VN30", "2026-02-27")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSymbols_Lookup(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSymbols(ctx, []model.SymbolMeta{
		{Symbol: "VNINDEX", Name: "VN-Index", Exchange: "HOSE", Kind: model.KindIndex},
		{Symbol: "FPT", Name: "FPT Corp", Exchange: "HOSE"},
	}))

	got, err := s.LookupSymbols(ctx, []string{"FPT", "VNINDEX", "NOPE"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, model.KindIndex, got["VNINDEX"].Kind)
	assert.Equal(t, model.KindEquity, got["FPT"].Kind)
	assert.NotContains(t, got, "NOPE")

	empty, err := s.LookupSymbols(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
