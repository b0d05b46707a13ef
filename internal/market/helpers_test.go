package market

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"quoteserve/internal/breaker"
	"quoteserve/internal/cache"
	"quoteserve/internal/intraday"
	"quoteserve/internal/markethours"
	"quoteserve/internal/metrics"
	"quoteserve/internal/model"
	"quoteserve/internal/normalize"
	"quoteserve/internal/provider"
	"quoteserve/internal/reconcile"
	"quoteserve/internal/store/sqlite"
)

// Wednesday, a regular trading day.
var day = time.Date(2026, 3, 18, 0, 0, 0, 0, markethours.ICT)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 18, h, m, 0, 0, markethours.ICT)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

// quoteSource is a scripted QuoteSource.
type quoteSource struct {
	name    string
	samples []model.ProviderSample
	err     error
	calls   atomic.Int32
}

func (q *quoteSource) Name() string { return q.name }

func (q *quoteSource) FetchQuotes(_ context.Context, symbols []string) ([]model.ProviderSample, error) {
	q.calls.Add(1)
	if q.err != nil {
		return nil, q.err
	}
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []model.ProviderSample
	for _, s := range q.samples {
		if want[s.Symbol] {
			s.Provider = q.name
			out = append(out, s)
		}
	}
	return out, nil
}

// barSource returns the same bars for every request. Tests that run the
// finalizer loop change bars through set.
type barSource struct {
	bars  map[string][]model.RawBar
	err   error
	calls atomic.Int32

	mu        sync.Mutex
	perSymbol map[string]int
}

func (b *barSource) Name() string { return "vci" }

func (b *barSource) FetchIntraday(_ context.Context, symbol string, _ time.Time) ([]model.RawBar, error) {
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.perSymbol == nil {
		b.perSymbol = make(map[string]int)
	}
	b.perSymbol[symbol]++
	if b.err != nil {
		return nil, b.err
	}
	return b.bars[symbol], nil
}

func (b *barSource) set(symbol string, bars ...model.RawBar) {
	b.mu.Lock()
	b.bars[symbol] = bars
	b.mu.Unlock()
}

func (b *barSource) callsFor(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perSymbol[symbol]
}

// ratioSource returns fixed ratios; block makes every call wait.
type ratioSource struct {
	block chan struct{}
	calls atomic.Int32
}

func (r *ratioSource) Name() string { return "ratios" }

func (r *ratioSource) FetchRatios(_ context.Context, symbol string) (model.Ratios, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	return model.Ratios{Symbol: symbol, PE: 12.5, PB: 2.1}, nil
}

func sample(symbol, price, ref string) model.ProviderSample {
	return model.ProviderSample{
		Symbol: symbol,
		Raw:    model.RawQuote{Price: nd(price), Reference: nd(ref), Volume: nd("1000")},
	}
}

func rawBar(h, m int, close string) model.RawBar {
	return model.RawBar{TS: at(h, m), Close: decimal.RequireFromString(close), Volume: decimal.NewFromInt(100)}
}

type fixture struct {
	svc     *Service
	store   *sqlite.Store
	cache   *cache.Tiered
	vps     *quoteSource
	vci     *quoteSource
	bars    *barSource
	ratios  *ratioSource
	metrics *metrics.Metrics

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func newFixture(t *testing.T, now time.Time, exec Executor, cfg Config) *fixture {
	t.Helper()
	store, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:   store,
		cache:   cache.New(nil, cache.DefaultConfig()),
		vps:     &quoteSource{name: "vps"},
		vci:     &quoteSource{name: "vci"},
		bars:    &barSource{bars: map[string][]model.RawBar{}},
		ratios:  &ratioSource{},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		now:     now,
	}
	norm := normalize.New(normalize.DefaultConfig())
	f.svc = New(Deps{
		Cache:      f.cache,
		Breaker:    breaker.New(f.cache, breaker.Config{Cooldown: time.Minute}),
		Quotes:     []provider.QuoteSource{f.vps, f.vci},
		Bars:       f.bars,
		Ratios:     f.ratios,
		Normalizer: norm,
		Reconciler: reconcile.New(norm, store).WithClock(f.clock),
		Builder:    intraday.NewBuilder(store, store, nil).WithClock(f.clock),
		History:    store,
		Sessions:   store,
		Symbols:    store,
		Executor:   exec,
		Metrics:    f.metrics,
	}, cfg).WithClock(f.clock)
	return f
}
