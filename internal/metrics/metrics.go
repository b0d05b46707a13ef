// Package metrics exposes Prometheus metrics and the /healthz endpoint for
// the quote serving layer.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quoteserve/internal/breaker"
	"quoteserve/internal/cache"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Tiered cache
	CacheHits     *prometheus.CounterVec // labels: tier=l1|l2
	CacheMisses   prometheus.Counter
	CacheL2Errors *prometheus.CounterVec // labels: op

	// Breaker
	BreakerTrips *prometheus.CounterVec // labels: provider
	BreakerState *prometheus.GaugeVec   // labels: provider; 0=closed, 1=open

	// Providers
	ProviderCalls   *prometheus.CounterVec   // labels: provider, outcome=ok|empty|failed|suppressed
	ProviderLatency *prometheus.HistogramVec // labels: provider

	// Reconciliation
	ReconcileFallbacks prometheus.Counter
	DataUnavailable    prometheus.Counter

	// Orchestrator
	BatchDuration   *prometheus.HistogramVec // labels: op
	DegradedRecords prometheus.Counter
	BatchCacheHits  prometheus.Counter

	// Sessions
	SessionsFinalized prometheus.Counter
	MarketState       prometheus.Gauge // 0=closed, 1=open

	// Streaming
	WSClients prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteserve_cache_hits_total",
			Help: "Tiered cache hits by tier",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoteserve_cache_misses_total",
			Help: "Tiered cache misses at both tiers",
		}),
		CacheL2Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteserve_cache_l2_errors_total",
			Help: "Shared cache failures by operation",
		}, []string{"op"}),

		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteserve_breaker_trips_total",
			Help: "Times a provider breaker opened",
		}, []string{"provider"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quoteserve_breaker_state",
			Help: "Provider breaker state (0=closed, 1=open)",
		}, []string{"provider"}),

		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoteserve_provider_calls_total",
			Help: "Upstream provider calls by outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quoteserve_provider_latency_seconds",
			Help:    "Upstream provider call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"provider"}),

		ReconcileFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoteserve_reconcile_fallbacks_total",
			Help: "Quotes that needed the historical store",
		}),
		DataUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoteserve_data_unavailable_total",
			Help: "Symbols with no live or historical data",
		}),

		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quoteserve_batch_duration_seconds",
			Help:    "Duration of exposed operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		DegradedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoteserve_degraded_records_total",
			Help: "Watchlist records returned degraded",
		}),
		BatchCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoteserve_batch_cache_hits_total",
			Help: "Watchlist batches served from the batch cache",
		}),

		SessionsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoteserve_sessions_finalized_total",
			Help: "Intraday sessions persisted",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quoteserve_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quoteserve_ws_clients",
			Help: "Connected summary stream clients",
		}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.CacheL2Errors,
		m.BreakerTrips,
		m.BreakerState,
		m.ProviderCalls,
		m.ProviderLatency,
		m.ReconcileFallbacks,
		m.DataUnavailable,
		m.BatchDuration,
		m.DegradedRecords,
		m.BatchCacheHits,
		m.SessionsFinalized,
		m.MarketState,
		m.WSClients,
	)
	return m
}

// InstrumentCache hooks cache events into the metrics.
func (m *Metrics) InstrumentCache(c *cache.Tiered) {
	if m == nil || c == nil {
		return
	}
	c.OnHit = func(tier string) { m.CacheHits.WithLabelValues(tier).Inc() }
	c.OnMiss = func() { m.CacheMisses.Inc() }
	c.OnL2Error = func(op string) { m.CacheL2Errors.WithLabelValues(op).Inc() }
}

// InstrumentBreaker hooks breaker transitions into the metrics, chaining
// any callback already set.
func (m *Metrics) InstrumentBreaker(b *breaker.Breaker) {
	if m == nil || b == nil {
		return
	}
	prev := b.OnStateChange
	b.OnStateChange = func(provider string, from, to breaker.State) {
		if prev != nil {
			prev(provider, from, to)
		}
		m.BreakerState.WithLabelValues(provider).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTrips.WithLabelValues(provider).Inc()
		}
	}
}

// ProviderCall records one upstream call.
func (m *Metrics) ProviderCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	if d > 0 {
		m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// Fallback records a historical-store fallback.
func (m *Metrics) Fallback() {
	if m != nil {
		m.ReconcileFallbacks.Inc()
	}
}

// Unavailable records a symbol that resolved to no data.
func (m *Metrics) Unavailable() {
	if m != nil {
		m.DataUnavailable.Inc()
	}
}

// Degraded records a degraded watchlist record.
func (m *Metrics) Degraded() {
	if m != nil {
		m.DegradedRecords.Inc()
	}
}

// BatchHit records a watchlist batch served from cache.
func (m *Metrics) BatchHit() {
	if m != nil {
		m.BatchCacheHits.Inc()
	}
}

// Finalized records a persisted session.
func (m *Metrics) Finalized() {
	if m != nil {
		m.SessionsFinalized.Inc()
	}
}

// ObserveOp records the duration of an exposed operation since start.
func (m *Metrics) ObserveOp(op string, start time.Time) {
	if m != nil {
		m.BatchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// SetMarketOpen records the session state.
func (m *Metrics) SetMarketOpen(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.MarketState.Set(v)
}

// AddWSClients adjusts the connected stream client gauge.
func (m *Metrics) AddWSClients(delta int) {
	if m != nil {
		m.WSClients.Add(float64(delta))
	}
}

// Pinger is a dependency that can be probed for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	OpenProviders  []string  `json:"open_providers"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	// Liveness probe results
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// SetOpenProviders records which provider breakers are open.
func (h *HealthStatus) SetOpenProviders(providers []string) {
	sorted := append([]string(nil), providers...)
	sort.Strings(sorted)
	h.mu.Lock()
	h.OpenProviders = sorted
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb Pinger) {
	start := time.Now()
	err := rdb.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. extra runs after
// the probes on every tick.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb Pinger, sqlDB *sql.DB, interval time.Duration, extra func(context.Context)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				if extra != nil {
					extra(probeCtx)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Losing Redis only degrades
// service (L1 still serves); losing SQLite is unhealthy.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || len(h.OpenProviders) > 0 {
		overallStatus = "degraded"
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		OpenProviders   []string `json:"open_providers"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		OpenProviders:   h.OpenProviders,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer nil uses the
// default gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "component", "metrics", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "component", "metrics", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
