package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteserve/internal/logger"
	"quoteserve/internal/market"
	"quoteserve/internal/model"
)

type fakeService struct {
	mu          sync.Mutex
	summaryArgs [][]string
	watchArgs   []string
	invalidated []string
	seriesErr   error
	traceID     string
}

func (f *fakeService) GetMarketSummary(_ context.Context, symbols []string) ([]model.SummaryItem, error) {
	f.mu.Lock()
	f.summaryArgs = append(f.summaryArgs, symbols)
	f.mu.Unlock()
	if len(symbols) == 0 {
		return nil, market.ErrNoSymbols
	}
	out := make([]model.SummaryItem, len(symbols))
	for i, s := range symbols {
		out[i] = model.SummaryItem{Quote: model.Quote{Symbol: s, Price: 100, ReferencePrice: 99}, Sparkline: []model.SparkPoint{}}
	}
	return out, nil
}

func (f *fakeService) GetIntradaySeries(ctx context.Context, symbol string) (model.IntradaySeries, error) {
	f.traceID = logger.TraceID(ctx)
	if f.seriesErr != nil {
		return model.IntradaySeries{}, f.seriesErr
	}
	return model.IntradaySeries{Symbol: symbol, SessionDate: "2026-03-18", State: model.SessionFinalized}, nil
}

func (f *fakeService) GetWatchlistDetail(_ context.Context, symbols []string, batchID string) ([]model.EnrichedRecord, error) {
	f.watchArgs = append([]string{batchID}, symbols...)
	if len(symbols) == 0 {
		return nil, market.ErrNoSymbols
	}
	out := make([]model.EnrichedRecord, len(symbols))
	for i, s := range symbols {
		out[i] = model.EnrichedRecord{Symbol: s}
	}
	return out, nil
}

func (f *fakeService) InvalidateCache(_ context.Context, keys ...string) {
	f.invalidated = append(f.invalidated, keys...)
}

func TestSummaryRoute(t *testing.T) {
	svc := &fakeService{}
	mux := NewRouter(svc, nil, []string{"VNINDEX"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/summary?symbols=fpt,%20vnm,", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []model.SummaryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "FPT", items[0].Quote.Symbol)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"VNINDEX"}, svc.summaryArgs[1])
}

func TestIntradayRoute(t *testing.T) {
	svc := &fakeService{}
	mux := NewRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/intraday/fpt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var series model.IntradaySeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, "FPT", series.Symbol)

	svc.seriesErr = fmt.Errorf("FPT: %w", market.ErrNoSeries)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/intraday/FPT", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestsCarryTraceID(t *testing.T) {
	svc := &fakeService{}
	mux := NewRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/intraday/FPT", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	tid := rec.Header().Get(TraceHeader)
	assert.True(t, strings.HasPrefix(tid, "get-api-market-intraday-fpt-"), tid)
	assert.Equal(t, tid, svc.traceID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/intraday/FPT", nil))
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestWatchlistRoute(t *testing.T) {
	svc := &fakeService{}
	mux := NewRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/watchlist/wl-7?symbols=HPG,FPT", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"wl-7", "HPG", "FPT"}, svc.watchArgs)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/watchlist/wl-7", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidateRoute(t *testing.T) {
	svc := &fakeService{}
	mux := NewRouter(svc, nil, nil)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"keys":["quote:FPT","batch:wl-7"]}`)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"quote:FPT", "batch:wl-7"}, svc.invalidated)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/invalidate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSummaryStream(t *testing.T) {
	svc := &fakeService{}
	hub := NewHub(svc, []string{"VNINDEX", "VN30"}, 20*time.Millisecond, nil)
	srv := httptest.NewServer(NewRouter(svc, hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/summary"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var env struct {
			Type string              `json:"type"`
			Data []model.SummaryItem `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "summary", env.Type)
		require.Len(t, env.Data, 2)
		assert.Equal(t, "VN30", env.Data[1].Quote.Symbol)
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
