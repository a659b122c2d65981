// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Role resolution metrics
	RoleResolutionsTotal   *prometheus.CounterVec
	WhitelistFailuresTotal prometheus.Counter
	ReconciliationsTotal   *prometheus.CounterVec

	// Whitelist cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Gate metrics
	GateDecisionsTotal *prometheus.CounterVec
	SignInsTotal       *prometheus.CounterVec
}

// New creates and registers all metrics on registry.
// A nil registry gets a fresh one, which keeps tests isolated.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contribhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		RoleResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_role_resolutions_total",
				Help: "Role resolutions by resulting role and deciding source",
			},
			[]string{"role", "source"},
		),
		WhitelistFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contribhub_whitelist_failures_total",
				Help: "Whitelist lookups that failed and fell back to contributor",
			},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_role_reconciliations_total",
				Help: "Stored-role reconciliation attempts by outcome",
			},
			[]string{"outcome"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_whitelist_cache_hits_total",
				Help: "Whitelist cache hits by cache layer",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_whitelist_cache_misses_total",
				Help: "Whitelist cache misses by cache layer",
			},
			[]string{"layer"},
		),

		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_gate_decisions_total",
				Help: "Access gate decisions by surface and state",
			},
			[]string{"surface", "state"},
		),
		SignInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribhub_sign_ins_total",
				Help: "Sign-in attempts by provider and status",
			},
			[]string{"provider", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RoleResolutionsTotal,
		m.WhitelistFailuresTotal,
		m.ReconciliationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.GateDecisionsTotal,
		m.SignInsTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) RecordResolution(role, source string) {
	if m == nil {
		return
	}
	m.RoleResolutionsTotal.WithLabelValues(role, source).Inc()
}

func (m *Metrics) RecordWhitelistFailure() {
	if m == nil {
		return
	}
	m.WhitelistFailuresTotal.Inc()
}

func (m *Metrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.ReconciliationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCacheHit(layer string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(layer).Inc()
}

func (m *Metrics) RecordCacheMiss(layer string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
}

func (m *Metrics) RecordGateDecision(surface, state string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(surface, state).Inc()
}

func (m *Metrics) RecordSignIn(provider, status string) {
	if m == nil {
		return
	}
	m.SignInsTotal.WithLabelValues(provider, status).Inc()
}
