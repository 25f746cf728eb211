// Package metrics holds the Prometheus collectors of the poller and the HTTP
// endpoint that serves them. Every method is safe on a nil *Metrics.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes reported in dbpoll_ticks_total.
const (
	TickOK      = "ok"
	TickFailed  = "failed"
	TickSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	ticks         *prometheus.CounterVec
	rows          *prometheus.CounterVec
	normalizeErrs *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	poolConns     *prometheus.GaugeVec
	pollerState   *prometheus.GaugeVec
}

// New creates the collectors in a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbpoll_ticks_total",
			Help: "Scheduled ticks by outcome",
		}, []string{"source", "status"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbpoll_rows_total",
			Help: "Rows emitted",
		}, []string{"source"}),
		normalizeErrs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbpoll_normalization_failures_total",
			Help: "Column values that could not be normalized and were emitted as null",
		}, []string{"source", "kind"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbpoll_query_duration_seconds",
			Help:    "Time spent acquiring a connection and running the statement",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source"}),
		poolConns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbpoll_pool_connections",
			Help: "Stats about the source's connection pool",
		}, []string{"source", "metric"}),
		pollerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbpoll_poller_state",
			Help: "Current state of the poll loop (0 starting, 1 waiting, 2 querying, 3 emitting, 4 shutting down)",
		}, []string{"source"}),
	}
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Tick(source, status string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(source, status).Inc()
}

func (m *Metrics) Rows(source string, n int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) NormalizationFailure(source, kind string) {
	if m == nil {
		return
	}
	m.normalizeErrs.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) QueryDuration(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) PollerState(source string, state int) {
	if m == nil {
		return
	}
	m.pollerState.WithLabelValues(source).Set(float64(state))
}

// PoolStats records a snapshot of the pool. Wait and close counts are
// cumulative in database/sql; they are exported as gauges as well.
func (m *Metrics) PoolStats(source string, stats sql.DBStats) {
	if m == nil {
		return
	}
	g := m.poolConns
	g.WithLabelValues(source, "num_open").Set(float64(stats.OpenConnections))
	g.WithLabelValues(source, "num_in_use").Set(float64(stats.InUse))
	g.WithLabelValues(source, "num_idle").Set(float64(stats.Idle))
	g.WithLabelValues(source, "wait_count").Set(float64(stats.WaitCount))
	g.WithLabelValues(source, "wait_duration_ms").Set(float64(stats.WaitDuration.Milliseconds()))
	g.WithLabelValues(source, "max_idle_closed").Set(float64(stats.MaxIdleClosed))
}
