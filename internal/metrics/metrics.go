// Package metrics exposes Prometheus metrics and a /healthz endpoint for
// the replay service.
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

// Metrics holds all Prometheus metrics for the replay engines.
type Metrics struct {
	TicksEmitted   prometheus.Counter
	SessionsLoaded prometheus.Counter
	LoadFailures   prometheus.Counter
	SessionsEnded  prometheus.Counter

	TradesTotal *prometheus.CounterVec // labels: side

	BookSnapshots *prometheus.CounterVec // labels: source=real|generated
	ForwardFills  prometheus.Counter

	EventsDropped prometheus.Counter

	ReplayProgress prometheus.Gauge
	ReplaySpeed    prometheus.Gauge

	TickEmitDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replayd_ticks_emitted_total",
			Help: "Total ticks emitted by the playback scheduler",
		}),
		SessionsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replayd_sessions_loaded_total",
			Help: "Total replay sessions loaded",
		}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replayd_session_load_failures_total",
			Help: "Session loads that failed in the loader",
		}),
		SessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replayd_sessions_ended_total",
			Help: "Replay sessions that ran to completion",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replayd_trades_total",
			Help: "Simulated trades executed (by side)",
		}, []string{"side"}),
		BookSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replayd_book_snapshots_total",
			Help: "Order book snapshots produced (real L2 vs generated)",
		}, []string{"source"}),
		ForwardFills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replayd_book_forward_fills_total",
			Help: "Book snapshots served from the forward-fill cache",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replayd_events_dropped_total",
			Help: "Engine events dropped for slow subscribers",
		}),
		ReplayProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replayd_progress_percent",
			Help: "Current playback progress (0-100)",
		}),
		ReplaySpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replayd_speed_multiplier",
			Help: "Current playback speed multiplier",
		}),
		TickEmitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replayd_tick_emit_duration_seconds",
			Help:    "Per-tick processing latency (ledger + book + fan-out)",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
	}

	prometheus.MustRegister(
		m.TicksEmitted,
		m.SessionsLoaded,
		m.LoadFailures,
		m.SessionsEnded,
		m.TradesTotal,
		m.BookSnapshots,
		m.ForwardFills,
		m.EventsDropped,
		m.ReplayProgress,
		m.ReplaySpeed,
		m.TickEmitDur,
	)

	return m
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisConnected bool      `json:"redis_connected"`
	ActiveSession  string    `json:"active_session"`
	LastTickTime   time.Time `json:"last_tick_time"`

	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetActiveSession(id string) {
	h.mu.Lock()
	h.ActiveSession = id
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
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

// CheckRedis pings Redis and records latency + connectivity.
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

// StartLivenessChecker runs periodic dependency checks. rdb may be nil when
// the service runs without Redis.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
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

	overall := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overall = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		ActiveSession   string  `json:"active_session"`
		TickAge         string  `json:"tick_age"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overall,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		ActiveSession:   h.ActiveSession,
		TickAge:         tickAge,
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

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
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
