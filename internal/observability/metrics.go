package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sweetify"

// Authentication outcomes recorded by the gate.
const (
	AuthAnonymous   = "anonymous"
	AuthRejected    = "rejected"
	AuthLocal       = "local"
	AuthExternal    = "external"
	AuthDegraded    = "degraded"
	AuthReconcileKO = "reconcile_failed"
	AuthPanic       = "panic"
)

// Metrics holds the application collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	auth      *prometheus.CounterVec
	purchases *prometheus.CounterVec
	units     prometheus.Counter
	webhooks  *prometheus.CounterVec
}

// NewMetrics registers the collectors together with the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_requests_total",
			Help:      "Requests seen by the authentication gate, by outcome.",
		}, []string{"outcome"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchase attempts, by result.",
		}, []string{"result"}),
		units: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchased_units_total",
			Help:      "Units sold across all sweets.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Identity provider webhook deliveries, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.auth, m.purchases, m.units, m.webhooks,
	)
	return m
}

// RecordAuth counts one pass through the authentication gate.
func (m *Metrics) RecordAuth(outcome string) {
	if m == nil {
		return
	}
	m.auth.WithLabelValues(outcome).Inc()
}

// RecordPurchase counts a purchase attempt; units only count on success.
func (m *Metrics) RecordPurchase(result string, units int) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(result).Inc()
	if result == "ok" && units > 0 {
		m.units.Add(float64(units))
	}
}

// RecordWebhook counts a webhook delivery.
func (m *Metrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
