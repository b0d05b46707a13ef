package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
	"quoteserve/internal/model/mocks"
	"quoteserve/internal/normalize"
	"quoteserve/internal/provider"
	"quoteserve/internal/reconcile"
)

var (
	fetchedA = time.Date(2026, 3, 2, 10, 15, 0, 0, markethours.ICT)
	fetchedB = fetchedA.Add(time.Second)
)

func full(provider string, price, ref float64, at time.Time) model.PartialQuote {
	return model.PartialQuote{
		Provider:       provider,
		Price:          model.Float(price),
		ReferencePrice: model.Float(ref),
		Ceiling:        model.Float(ref * 1.07),
		Floor:          model.Float(ref * 0.93),
		Volume:         model.Float(1000),
		TurnoverValue:  model.Float(12.5),
		AsOf:           at,
	}
}

func TestMerge_HigherPriorityWins(t *testing.T) {
	a := full("vps", 96.5, 95, fetchedA)
	b := full("vci", 97.0, 94, fetchedB)
	b.Volume = model.Float(2222)

	q, ok := reconcile.Merge("FPT", []model.PartialQuote{a, b})
	require.True(t, ok)
	assert.Equal(t, model.Quote{
		Symbol:         "FPT",
		Price:          96.5,
		ReferencePrice: 95,
		Ceiling:        *a.Ceiling,
		Floor:          *a.Floor,
		Volume:         1000,
		TurnoverValue:  12.5,
		AsOf:           fetchedA,
		Source:         "vps",
	}, q)
}

func TestMerge_LowerPriorityOnlyFillsGaps(t *testing.T) {
	a := model.PartialQuote{Provider: "vps", Price: model.Float(96.5), AsOf: fetchedA}
	b := full("vci", 97.0, 95, fetchedB)

	q, ok := reconcile.Merge("FPT", []model.PartialQuote{a, b})
	require.True(t, ok)
	assert.Equal(t, 96.5, q.Price, "B must not override A's price")
	assert.Equal(t, "vps", q.Source)
	assert.Equal(t, 95.0, q.ReferencePrice)
	assert.Equal(t, *b.Ceiling, q.Ceiling)
	assert.Equal(t, 1000.0, q.Volume)
	assert.Equal(t, 12.5, q.TurnoverValue)
}

func TestMerge_SanityChecks(t *testing.T) {
	a := model.PartialQuote{Provider: "vps", Price: model.Float(0), ReferencePrice: model.Float(-1), Volume: model.Float(-3)}
	b := full("vci", 97.0, 95, fetchedB)

	q, ok := reconcile.Merge("FPT", []model.PartialQuote{a, b})
	require.True(t, ok)
	assert.Equal(t, 97.0, q.Price)
	assert.Equal(t, 95.0, q.ReferencePrice)
	assert.Equal(t, 1000.0, q.Volume)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestReconcileAll_IndexScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryStore(ctrl)

	vps := provider.OK(provider.NameVPS, []model.ProviderSample{{
		Provider: provider.NameVPS, Symbol: "VNINDEX", Unit: model.UnitPoints, FetchedAt: fetchedA,
		Raw: model.RawQuote{Price: nd("1879.13"), Reference: nd("1870.5")},
	}})
	vci := provider.OK(provider.NameVCI, []model.ProviderSample{{
		Provider: provider.NameVCI, Symbol: "VN30", FetchedAt: fetchedB,
		Raw: model.RawQuote{Price: nd("2080350"), Reference: nd("2071100")},
	}})

	r := reconcile.New(normalize.New(normalize.DefaultConfig()), history)
	quotes, missing := r.ReconcileAll(context.Background(), []string{"VNINDEX", "VN30"}, []provider.Result{vps, vci})

	assert.Empty(t, missing)
	require.Len(t, quotes, 2)
	assert.InDelta(t, 1879.13, quotes["VNINDEX"].Price, 1e-9)
	assert.InDelta(t, 2080.35, quotes["VN30"].Price, 1e-9)
	assert.InDelta(t, 2071.1, quotes["VN30"].ReferencePrice, 1e-9)
	assert.Equal(t, provider.NameVCI, quotes["VN30"].Source)
	assert.False(t, quotes["VN30"].Stale)
}

func TestReconcileAll_FailedResultIgnored(t *testing.T) {
	r := reconcile.New(normalize.New(normalize.DefaultConfig()), nil)

	failed := provider.Failed(provider.NameVPS, provider.NewRateLimit(provider.NameVPS, 429))
	vci := provider.OK(provider.NameVCI, []model.ProviderSample{{
		Provider: provider.NameVCI, Symbol: "FPT",
		Raw: model.RawQuote{Price: nd("96500"), Reference: nd("95000")},
	}})

	quotes, missing := r.ReconcileAll(context.Background(), []string{"FPT", "HPG"}, []provider.Result{failed, vci})
	assert.InDelta(t, 96.5, quotes["FPT"].Price, 1e-9)
	require.Contains(t, missing, "HPG")
	assert.ErrorIs(t, missing["HPG"], reconcile.ErrDataUnavailable)
	assert.NotContains(t, quotes, "HPG", "unresolved symbol is omitted, not zero-filled")
}

func TestReconcile_HistoricalFallbackForPriceAndReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryStore(ctrl)

	now := time.Date(2026, 3, 2, 20, 0, 0, 0, markethours.ICT)
	today := markethours.Midnight(now)
	friday := time.Date(2026, 2, 27, 0, 0, 0, 0, markethours.ICT)
	thursday := friday.AddDate(0, 0, -1)

	gomock.InOrder(
		history.EXPECT().
			LastCloseBefore(gomock.Any(), "FPT", today.AddDate(0, 0, 1)).
			Return(model.DailyBar{Symbol: "FPT", Date: friday, Close: 96.5, Volume: 4_000_000, Turnover: 385.2}, true, nil),
		history.EXPECT().
			LastCloseBefore(gomock.Any(), "FPT", friday).
			Return(model.DailyBar{Symbol: "FPT", Date: thursday, Close: 95.0}, true, nil),
	)

	fallbacks := 0
	r := reconcile.New(normalize.New(normalize.DefaultConfig()), history).WithClock(func() time.Time { return now })
	r.OnFallback = func(string) { fallbacks++ }

	q, err := r.Reconcile(context.Background(), "FPT", nil)
	require.NoError(t, err)
	assert.Equal(t, 96.5, q.Price)
	assert.Equal(t, 95.0, q.ReferencePrice)
	assert.True(t, q.Stale)
	assert.True(t, q.AsOf.Equal(friday))
	assert.Equal(t, 4_000_000.0, q.Volume)
	assert.Equal(t, 1, fallbacks)
	assert.InDelta(t, 1.5789, q.ChangePct(), 1e-3)
}

func TestReconcile_LivePriceHistoricalReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryStore(ctrl)

	now := fetchedA
	history.EXPECT().
		LastCloseBefore(gomock.Any(), "VNM", markethours.Midnight(now)).
		Return(model.DailyBar{Symbol: "VNM", Date: markethours.Midnight(now).AddDate(0, 0, -3), Close: 61.2}, true, nil)

	r := reconcile.New(normalize.New(normalize.DefaultConfig()), history).WithClock(func() time.Time { return now })
	q, err := r.Reconcile(context.Background(), "VNM", []model.PartialQuote{
		{Provider: "vps", Price: model.Float(62.0), AsOf: fetchedA},
	})
	require.NoError(t, err)
	assert.Equal(t, 62.0, q.Price)
	assert.Equal(t, 61.2, q.ReferencePrice)
	assert.True(t, q.Stale)
	assert.Equal(t, fetchedA, q.AsOf, "live price keeps its own timestamp")
}

func TestReconcile_SingleHistoricalClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryStore(ctrl)

	day := time.Date(2026, 2, 27, 0, 0, 0, 0, markethours.ICT)
	history.EXPECT().LastCloseBefore(gomock.Any(), "NEW", gomock.Any()).
		Return(model.DailyBar{Symbol: "NEW", Date: day, Close: 12.3}, true, nil)
	history.EXPECT().LastCloseBefore(gomock.Any(), "NEW", day).
		Return(model.DailyBar{}, false, nil)

	r := reconcile.New(normalize.New(normalize.DefaultConfig()), history)
	q, err := r.Reconcile(context.Background(), "NEW", nil)
	require.NoError(t, err)
	assert.Equal(t, 12.3, q.ReferencePrice)
	assert.Zero(t, q.ChangePct())
}

func TestReconcile_DataUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryStore(ctrl)
	history.EXPECT().LastCloseBefore(gomock.Any(), "ZZZ", gomock.Any()).
		Return(model.DailyBar{}, false, nil).Times(2)

	r := reconcile.New(normalize.New(normalize.DefaultConfig()), history)
	_, err := r.Reconcile(context.Background(), "ZZZ", nil)
	assert.ErrorIs(t, err, reconcile.ErrDataUnavailable)
}

func TestReconcile_HistoryErrorIsUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockHistoryStore(ctrl)
	history.EXPECT().LastCloseBefore(gomock.Any(), "FPT", gomock.Any()).
		Return(model.DailyBar{}, false, errors.New("database is locked"))

	r := reconcile.New(normalize.New(normalize.DefaultConfig()), history)
	_, err := r.Reconcile(context.Background(), "FPT", nil)
	assert.ErrorIs(t, err, reconcile.ErrDataUnavailable)
}

func TestReconcile_NoHistoryStore(t *testing.T) {
	r := reconcile.New(normalize.New(normalize.DefaultConfig()), nil)
	_, err := r.Reconcile(context.Background(), "FPT", []model.PartialQuote{{Price: model.Float(1)}})
	assert.ErrorIs(t, err, reconcile.ErrDataUnavailable)
}
