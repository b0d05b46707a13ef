package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestNormalize_ScaleRule(t *testing.T) {
	h := New(DefaultConfig())

	tests := []struct {
		name  string
		price string
		want  float64
	}{
		{"index points unchanged", "1879.13", 1879.13},
		{"raw index divided", "2080350", 2080.35},
		{"equity thousands unchanged", "96.5", 96.5},
		{"raw equity divided", "96500", 96.5},
		{"at threshold unchanged", "5000", 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pq := h.Normalize(model.ProviderSample{Symbol: "X", Raw: model.RawQuote{Price: nd(tt.price)}})
			require.NotNil(t, pq.Price)
			assert.InDelta(t, tt.want, *pq.Price, 1e-9)
		})
	}
}

func TestNormalize_ScaleInvariantChangePct(t *testing.T) {
	h := New(DefaultConfig())

	raw := h.Normalize(model.ProviderSample{Raw: model.RawQuote{
		Price: nd("96500"), Reference: nd("95000"), Ceiling: nd("101600"), Floor: nd("88400"),
	}})
	points := h.Normalize(model.ProviderSample{Raw: model.RawQuote{
		Price: nd("96.5"), Reference: nd("95"), Ceiling: nd("101.6"), Floor: nd("88.4"),
	}})

	for _, pq := range []model.PartialQuote{raw, points} {
		require.NotNil(t, pq.Price)
		require.NotNil(t, pq.ReferencePrice)
	}
	assert.InDelta(t, *points.Price / *points.ReferencePrice, *raw.Price / *raw.ReferencePrice, 1e-12)
	assert.InDelta(t, *points.Ceiling, *raw.Ceiling, 1e-9)
	assert.InDelta(t, *points.Floor, *raw.Floor, 1e-9)
}

func TestNormalize_ReferenceDecidesWhenPriceMissing(t *testing.T) {
	h := New(DefaultConfig())
	pq := h.Normalize(model.ProviderSample{Raw: model.RawQuote{Reference: nd("61200"), Ceiling: nd("65400")}})

	assert.Nil(t, pq.Price)
	require.NotNil(t, pq.ReferencePrice)
	assert.InDelta(t, 61.2, *pq.ReferencePrice, 1e-9)
	assert.InDelta(t, 65.4, *pq.Ceiling, 1e-9)
}

func TestNormalize_DeclaredUnitOverridesHeuristic(t *testing.T) {
	h := New(DefaultConfig())

	points := h.Normalize(model.ProviderSample{Unit: model.UnitPoints, Raw: model.RawQuote{Price: nd("6012.5")}})
	assert.InDelta(t, 6012.5, *points.Price, 1e-9)

	raw := h.Normalize(model.ProviderSample{Unit: model.UnitRaw, Raw: model.RawQuote{Price: nd("4900")}})
	assert.InDelta(t, 4.9, *raw.Price, 1e-9)
}

func TestNormalize_AbsentStaysAbsent(t *testing.T) {
	h := New(DefaultConfig())
	at := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

	pq := h.Normalize(model.ProviderSample{Provider: "vps", Symbol: "FPT", FetchedAt: at, Raw: model.RawQuote{Price: nd("96.5")}})
	assert.Equal(t, "FPT", pq.Symbol)
	assert.Equal(t, "vps", pq.Provider)
	assert.Equal(t, at, pq.AsOf)
	assert.Nil(t, pq.ReferencePrice)
	assert.Nil(t, pq.Ceiling)
	assert.Nil(t, pq.Floor)
	assert.Nil(t, pq.Volume)
	assert.Nil(t, pq.TurnoverValue)

	zero := h.Normalize(model.ProviderSample{Raw: model.RawQuote{Volume: nd("0"), Price: nd("0")}})
	require.NotNil(t, zero.Volume, "an explicit zero is present")
	assert.Zero(t, *zero.Volume)
	require.NotNil(t, zero.Price)
}

func TestNormalize_NegativeVolumeDropped(t *testing.T) {
	h := New(DefaultConfig())
	pq := h.Normalize(model.ProviderSample{Raw: model.RawQuote{Volume: nd("-5"), Turnover: nd("-1")}})
	assert.Nil(t, pq.Volume)
	assert.Nil(t, pq.TurnoverValue)
}

func TestTurnover(t *testing.T) {
	h := New(DefaultConfig())

	tests := []struct {
		raw  string
		want float64
	}{
		{"7525000000000", 7525}, // raw VND
		{"1000000000", 1},       // exactly at threshold
		{"18250000", 18.25},     // thousands
		{"0", 0},
	}
	for _, tt := range tests {
		got := h.Turnover(nd(tt.raw))
		require.NotNil(t, got, tt.raw)
		assert.InDelta(t, tt.want, *got, 1e-9, tt.raw)
	}
	assert.Nil(t, h.Turnover(decimal.NullDecimal{}))
}

func TestNormalizeBars(t *testing.T) {
	h := New(DefaultConfig())
	t0 := time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC)

	points := h.NormalizeBars([]model.RawBar{
		{TS: t0, Close: decimal.RequireFromString("96000"), Volume: decimal.NewFromInt(100)},
		{TS: t0.Add(time.Minute), Close: decimal.Zero},
		{TS: t0.Add(2 * time.Minute), Close: decimal.RequireFromString("1879.13")},
	})
	require.Len(t, points, 2)
	assert.InDelta(t, 96.0, points[0].Price, 1e-9)
	assert.Equal(t, 100.0, points[0].Volume)
	assert.InDelta(t, 1879.13, points[1].Price, 1e-9)
	assert.Zero(t, points[1].Volume)
}

func TestNormalizeResult(t *testing.T) {
	h := New(Config{})

	assert.Nil(t, h.NormalizeResult(provider.Result{Provider: "vps", Status: provider.StatusFailed}))

	got := h.NormalizeResult(provider.OK("vci", []model.ProviderSample{
		{Provider: "vci", Symbol: "VN30", Raw: model.RawQuote{Price: nd("2080350")}},
	}))
	require.Len(t, got, 1)
	assert.InDelta(t, 2080.35, *got[0].Price, 1e-9)
	assert.InDelta(t, 96.5, h.Scale(decimal.RequireFromString("96500")), 1e-9)
}
