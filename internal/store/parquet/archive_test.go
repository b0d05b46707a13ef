package parquet

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
)

func TestArchiveRoundTrip(t *testing.T) {
	a := New(t.TempDir())
	open := markethours.TodayOpen(time.Date(2026, 2, 27, 0, 0, 0, 0, markethours.ICT))

	series := model.IntradaySeries{
		Symbol:      "FPT",
		SessionDate: "2026-02-27",
		State:       model.SessionFinalized,
		Points: []model.SessionPoint{
			{TS: open, Price: 95, Volume: 1000},
			{TS: open.Add(time.Minute), Price: 95, Filled: true},
		},
	}
	require.NoError(t, a.Archive(series))
	require.NoError(t, a.Archive(series), "re-archiving replaces the file")

	_, err := os.Stat(a.Path("FPT", "2026-02-27") + ".tmp")
	assert.True(t, os.IsNotExist(err))

	rows, err := a.Load("FPT", "2026-02-27")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Symbol: "FPT", Date: "2026-02-27", TS: open.Unix(), Price: 95, Volume: 1000}, rows[0])
	assert.True(t, rows[1].Filled)
}

func TestLoadMissing(t *testing.T) {
	_, err := New(t.TempDir()).Load("FPT", "2026-02-27")
	assert.Error(t, err)
}
