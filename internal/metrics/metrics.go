package metrics

import (
	"net/http"
	"strconv"
	"time"

	"consent-bridge/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	batches          *prometheus.CounterVec
	consentUpdates   *prometheus.CounterVec
}

// New registers the service metrics under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Requests sent to the Shopify Admin API.",
			},
			[]string{"operation", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Latency of Shopify Admin API requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consent",
				Name:      "batches_total",
				Help:      "Marketing consent batches by outcome.",
			},
			[]string{"outcome"},
		),
		consentUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consent",
				Name:      "updates_total",
				Help:      "Customer consent records updated upstream, by target state.",
			},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(
		m.upstreamRequests,
		m.upstreamDuration,
		m.batches,
		m.consentUpdates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveUpstream records one upstream call. Status 0 means a transport error.
func (m *Metrics) ObserveUpstream(operation string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.upstreamRequests.WithLabelValues(operation, status).Inc()
	m.upstreamDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// BatchFinished counts a completed batch by outcome.
func (m *Metrics) BatchFinished(outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
}

// ConsentUpdated counts one applied consent change.
func (m *Metrics) ConsentUpdated(state domain.ConsentState) {
	if m == nil {
		return
	}
	m.consentUpdates.WithLabelValues(string(state)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
