// Package metrics exposes Prometheus collectors for the HTTP surface, the
// costing engine, background jobs and the database pool.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

const namespace = "stockledger"

var _ inventory.Metrics = (*Metrics)(nil)

// Metrics owns a private registry and every collector registered on it.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	movements       *prometheus.CounterVec
	movedUnits      *prometheus.CounterVec
	movedValue      *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	pricingFailures prometheus.Counter
	drift           prometheus.Histogram
	driftingTotal   prometheus.Counter

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// New builds the registry with Go and process collectors included.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_movements_total",
			Help: "Committed stock movements by direction.",
		}, []string{"type"}),
		movedUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_moved_units_total",
			Help: "Units moved by direction.",
		}, []string{"type"}),
		movedValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_moved_value_total",
			Help: "Cost value moved by direction.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_rejections_total",
			Help: "Rejected movements by error code.",
		}, []string{"code"}),
		pricingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pricing_update_failures_total",
			Help: "Product price updates that failed after a committed movement.",
		}),
		drift: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "wac_drift_abs",
			Help:    "Absolute difference between ledger and batch-derived average cost.",
			Buckets: []float64{0.000001, 0.0001, 0.01, 0.1, 1, 10, 100},
		}),
		driftingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wac_drift_detected_total",
			Help: "Products found with non-zero average cost drift.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Background job runs by job and status.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal, m.requestDuration,
		m.movements, m.movedUnits, m.movedValue, m.rejections,
		m.pricingFailures, m.drift, m.driftingTotal,
		m.jobRuns, m.jobDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// GinMiddleware records request counts and latency keyed by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// RecordMovement implements inventory.Metrics.
func (m *Metrics) RecordMovement(kind inventory.TransactionType, quantity int64, value types.Money) {
	label := string(kind)
	m.movements.WithLabelValues(label).Inc()
	m.movedUnits.WithLabelValues(label).Add(float64(quantity))
	m.movedValue.WithLabelValues(label).Add(value.Abs().InexactFloat64())
}

// RecordRejection implements inventory.Metrics.
func (m *Metrics) RecordRejection(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

// RecordPricingFailure implements inventory.Metrics.
func (m *Metrics) RecordPricingFailure() {
	m.pricingFailures.Inc()
}

// RecordDrift implements inventory.Metrics. Product ids are not used as
// labels.
func (m *Metrics) RecordDrift(_ id.ID, drift types.Money) {
	m.drift.Observe(drift.Abs().InexactFloat64())
	if !drift.IsZero() {
		m.driftingTotal.Inc()
	}
}

// Tracker measures a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts measuring a job run.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.jobRuns.WithLabelValues(t.job, status).Inc()
	t.metrics.jobDuration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// RegisterPool exports pgxpool statistics as gauges sampled at scrape time.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db_pool", Name: name, Help: help,
		}, func() float64 { return fn(pool.Stat()) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Open connections.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("acquired_conns", "Connections in use.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("idle_conns", "Idle connections.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("max_conns", "Pool size limit.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	)
}
