// Package api exposes the market serving layer over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quoteserve/config"
	"quoteserve/internal/logger"
	"quoteserve/internal/market"
	"quoteserve/internal/model"
)

// Service is the market layer consumed by the handlers.
type Service interface {
	GetMarketSummary(ctx context.Context, symbols []string) ([]model.SummaryItem, error)
	GetIntradaySeries(ctx context.Context, symbol string) (model.IntradaySeries, error)
	GetWatchlistDetail(ctx context.Context, symbols []string, batchID string) ([]model.EnrichedRecord, error)
	InvalidateCache(ctx context.Context, keys ...string)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// TraceHeader carries the request's trace ID back to the caller.
const TraceHeader = "X-Trace-Id"

// NewRouter registers all routes behind the trace middleware.
// defaultSymbols answer a summary request without a symbols parameter.
// hub may be nil to disable the stream.
func NewRouter(svc Service, hub *Hub, defaultSymbols []string) http.Handler {
	mux := http.NewServeMux()

	// REST: market summary
	mux.HandleFunc("GET /api/market/summary", func(w http.ResponseWriter, r *http.Request) {
		symbols := config.ParseSymbols(r.URL.Query().Get("symbols"))
		if len(symbols) == 0 {
			symbols = defaultSymbols
		}
		items, err := svc.GetMarketSummary(r.Context(), symbols)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	})

	// REST: intraday series
	mux.HandleFunc("GET /api/market/intraday/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
		series, err := svc.GetIntradaySeries(r.Context(), symbol)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, series)
	})

	// REST: watchlist detail
	mux.HandleFunc("GET /api/watchlist/{id}", func(w http.ResponseWriter, r *http.Request) {
		symbols := config.ParseSymbols(r.URL.Query().Get("symbols"))
		recs, err := svc.GetWatchlistDetail(r.Context(), symbols, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	// REST: cache busting on portfolio mutations
	mux.HandleFunc("POST /api/cache/invalidate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Keys []string `json:"keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		svc.InvalidateCache(r.Context(), req.Keys...)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "invalidated": len(req.Keys)})
	})

	mux.HandleFunc("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})

	if hub != nil {
		mux.HandleFunc("GET /ws/summary", hub.ServeWS)
	}
	return withTrace(mux)
}

// withTrace tags every request context with a trace ID so service logs
// along the request path can be correlated.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := logger.GenerateTraceID(r.Method+" "+r.URL.Path, time.Now())
		w.Header().Set(TraceHeader, tid)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), tid)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "component", "api", "error", err)
	}
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNoSymbols):
		code = http.StatusBadRequest
	case errors.Is(err, market.ErrNoSeries):
		code = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError {
		slog.Error("request failed", logger.LogWithTrace(r.Context(), "component", "api", "path", r.URL.Path, "error", err)...)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Server runs the API HTTP server.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates an API server for handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("api listening", "component", "api", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("api server error", "component", "api", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
