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

// Metrics holds all Prometheus metrics for the backtest runner.
type Metrics struct {
	UnitsTotal *prometheus.CounterVec // labels: result=ok|failed
	UnitDur    prometheus.Histogram

	TouchesTotal   prometheus.Counter
	LabelsTotal    *prometheus.CounterVec // labels: reversed=true|false
	TradesTotal    *prometheus.CounterVec // labels: exit_reason
	SkipsTotal     *prometheus.CounterVec // labels: reason
	FeatureRows    prometheus.Counter
	FeatureDropped prometheus.Counter
	RunErrorsTotal *prometheus.CounterVec // labels: stage

	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses a
// fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		UnitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_units_total",
			Help: "Completed (config, instrument) units by result",
		}, []string{"result"}),
		UnitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_unit_duration_seconds",
			Help:    "Wall time of one (config, instrument) pipeline",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		TouchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_touches_total",
			Help: "Lower-band touches detected",
		}),
		LabelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_labels_total",
			Help: "Reversal labels produced",
		}, []string{"reversed"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Simulated trades by exit reason",
		}, []string{"exit_reason"}),
		SkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_skipped_candidates_total",
			Help: "Touch candidates that produced no trade, by reason",
		}, []string{"reason"}),
		FeatureRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_feature_rows_total",
			Help: "Feature rows emitted",
		}),
		FeatureDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_feature_rows_dropped_total",
			Help: "Feature rows dropped for undefined inputs",
		}),
		RunErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_run_errors_total",
			Help: "Isolated unit failures by pipeline stage",
		}, []string{"stage"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_sqlite_commit_duration_seconds",
			Help:    "SQLite result batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_redis_write_duration_seconds",
			Help:    "Redis stream publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.UnitsTotal,
		m.UnitDur,
		m.TouchesTotal,
		m.LabelsTotal,
		m.TradesTotal,
		m.SkipsTotal,
		m.FeatureRows,
		m.FeatureDropped,
		m.RunErrorsTotal,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// Gatherer exposes the registry the metrics live in.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.gatherer }

// HealthStatus tracks run progress and dependency health.
type HealthStatus struct {
	mu sync.RWMutex

	RunID          string `json:"run_id"`
	UnitsTotal     int    `json:"units_total"`
	UnitsDone      int    `json:"units_done"`
	UnitsFailed    int    `json:"units_failed"`
	RedisConnected bool   `json:"redis_connected"`
	SQLiteOK       bool   `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// StartRun resets progress for a new run.
func (h *HealthStatus) StartRun(runID string, units int) {
	h.mu.Lock()
	h.RunID = runID
	h.UnitsTotal = units
	h.UnitsDone = 0
	h.UnitsFailed = 0
	h.mu.Unlock()
}

// UnitDone records one finished unit.
func (h *HealthStatus) UnitDone(failed bool) {
	h.mu.Lock()
	h.UnitsDone++
	if failed {
		h.UnitsFailed++
	}
	h.mu.Unlock()
}

// Progress returns done and total units.
func (h *HealthStatus) Progress() (done, total int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.UnitsDone, h.UnitsTotal
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

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "running"
	if h.UnitsTotal > 0 && h.UnitsDone >= h.UnitsTotal {
		status = "finished"
	}
	if h.UnitsFailed > 0 {
		status += "_with_errors"
	}

	body := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RunID           string  `json:"run_id"`
		UnitsDone       int     `json:"units_done"`
		UnitsTotal      int     `json:"units_total"`
		UnitsFailed     int     `json:"units_failed"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RunID:           h.RunID,
		UnitsDone:       h.UnitsDone,
		UnitsTotal:      h.UnitsTotal,
		UnitsFailed:     h.UnitsFailed,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
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

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

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
