// Package metrics collects advisory query and error metrics. The registry is
// explicit so each test gets its own instance.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	queryDuration   *prometheus.HistogramVec
	slowQueries     *prometheus.CounterVec
	sensitiveErrors prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "credits",
			Name:      "query_duration_seconds",
			Help:      "Store query latency by query name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		slowQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credits",
			Name:      "slow_queries_total",
			Help:      "Queries exceeding the slow-query threshold.",
		}, []string{"query"}),
		sensitiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "credits",
			Name:      "sensitive_errors_total",
			Help:      "Errors whose text was redacted before logging.",
		}),
	}
	m.registry.MustRegister(m.queryDuration, m.slowQueries, m.sensitiveErrors)
	return m
}

func (m *Metrics) ObserveQuery(name string, d time.Duration) {
	m.queryDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) RecordSlowQuery(name string) {
	m.slowQueries.WithLabelValues(name).Inc()
}

func (m *Metrics) RecordSensitiveError() {
	m.sensitiveErrors.Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exported for tests that gather directly.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
