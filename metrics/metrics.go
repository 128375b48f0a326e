// Package metrics exposes prometheus collectors for the query engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// StatementsTotal counts executed statements by kind and status.
	StatementsTotal *prometheus.CounterVec
	// StatementDuration is the statement latency in seconds.
	StatementDuration *prometheus.HistogramVec
	// CacheRequests counts result cache lookups by outcome.
	CacheRequests *prometheus.CounterVec
	// Transactions counts finished transactions by outcome.
	Transactions *prometheus.CounterVec
	// ActiveTransactions is the number of open transactions.
	ActiveTransactions prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StatementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsql_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"kind", "status"},
		),
		StatementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsql_statement_duration_seconds",
				Help:    "Statement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		CacheRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsql_cache_requests_total",
				Help: "Result cache lookups",
			},
			[]string{"result"},
		),
		Transactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsql_transactions_total",
				Help: "Finished transactions",
			},
			[]string{"outcome"},
		),
		ActiveTransactions: f.NewGauge(prometheus.GaugeOpts{
			Name: "docsql_active_transactions",
			Help: "Open transactions",
		}),
	}
}

// ObserveStatement records one executed statement.
func (m *Metrics) ObserveStatement(kind string, status uint16, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if status >= 400 {
		outcome = "error"
	}
	m.StatementsTotal.WithLabelValues(kind, outcome).Inc()
	m.StatementDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// CacheHit records a result cache hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheRequests.WithLabelValues("hit").Inc()
	}
}

// CacheMiss records a result cache miss.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheRequests.WithLabelValues("miss").Inc()
	}
}

// TxBegin records an opened transaction.
func (m *Metrics) TxBegin() {
	if m != nil {
		m.ActiveTransactions.Inc()
	}
}

// TxEnd records a committed or rolled back transaction.
func (m *Metrics) TxEnd(committed bool) {
	if m == nil {
		return
	}
	m.ActiveTransactions.Dec()
	if committed {
		m.Transactions.WithLabelValues("commit").Inc()
	} else {
		m.Transactions.WithLabelValues("rollback").Inc()
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
