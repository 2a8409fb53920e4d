// Package metrics exposes Prometheus metrics and a health endpoint for
// the algo bot.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the decision loop.
type Metrics struct {
	CandlePolls    prometheus.Counter
	CandleFetchDur prometheus.Histogram
	Signals        *prometheus.CounterVec // labels: leg (CE|PE)
	Orders         *prometheus.CounterVec // labels: side, mode (live|dry_run)
	OrderFailures  prometheus.Counter
	Exits          *prometheus.CounterVec // labels: reason
	LoopErrors     prometheus.Counter

	PnL         prometheus.Gauge
	Running     prometheus.Gauge
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlePolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algobot_candle_polls_total",
			Help: "Total candle window fetches (both legs per poll)",
		}),
		CandleFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "algobot_candle_fetch_duration_seconds",
			Help:    "Latency of fetching both candle streams",
			Buckets: prometheus.DefBuckets,
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algobot_signals_total",
			Help: "Crossover signals detected (by leg)",
		}, []string{"leg"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algobot_orders_total",
			Help: "Orders issued (by side and mode)",
		}, []string{"side", "mode"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algobot_order_failures_total",
			Help: "Order placements that the broker rejected or errored",
		}),
		Exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algobot_exits_total",
			Help: "Leg exits (by reason: TARGET, STOPLOSS, EOD)",
		}, []string{"reason"}),
		LoopErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algobot_loop_errors_total",
			Help: "Decision loop iterations that failed and backed off",
		}),
		PnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "algobot_cumulative_pnl_rupees",
			Help: "Cumulative realized PnL of the current run",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "algobot_running",
			Help: "Whether a decision loop is active (0/1)",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "algobot_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	prometheus.MustRegister(
		m.CandlePolls,
		m.CandleFetchDur,
		m.Signals,
		m.Orders,
		m.OrderFailures,
		m.Exits,
		m.LoopErrors,
		m.PnL,
		m.Running,
		m.MarketState,
	)
	return m
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt       time.Time
	BrokerSessionOK bool
	RedisConnected  bool
	SQLiteOK        bool
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
}

// NewHealthStatus creates a health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// SetBrokerSessionOK records whether the broker session is usable.
func (h *HealthStatus) SetBrokerSessionOK(ok bool) {
	h.mu.Lock()
	h.BrokerSessionOK = ok
	h.mu.Unlock()
}

// SetRedisConnected records Redis availability.
func (h *HealthStatus) SetRedisConnected(ok bool) {
	h.mu.Lock()
	h.RedisConnected = ok
	h.mu.Unlock()
}

// SetSQLiteOK records journal availability.
func (h *HealthStatus) SetSQLiteOK(ok bool) {
	h.mu.Lock()
	h.SQLiteOK = ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + health.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
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

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
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
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.BrokerSessionOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		BrokerSessionOK bool    `json:"broker_session_ok"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		BrokerSessionOK: h.BrokerSessionOK,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
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
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
