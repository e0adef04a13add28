// Package metrics provides the Prometheus implementation of the server
// metrics port.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sufield/mvrp/internal/core/domain"
	"github.com/sufield/mvrp/internal/core/ports"
)

var (
	connectionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mvrp_connections_opened_total",
		Help: "Total number of accepted connections",
	})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mvrp_connections_active",
		Help: "Number of connections currently being handled",
	})

	connectionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mvrp_connections_closed_total",
		Help: "Total number of finished connections",
	}, []string{"outcome", "error_code"}) // outcome: served, failed

	connectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mvrp_connection_duration_seconds",
		Help:    "Time from accept to close of a connection",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	requestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mvrp_requests_total",
		Help: "Total number of responses written, by method and status code",
	}, []string{"method", "code"})
)

// PrometheusMetrics implements ports.ServerMetrics using Prometheus.
type PrometheusMetrics struct{}

// NewPrometheusMetrics creates a new Prometheus metrics reporter.
func NewPrometheusMetrics() ports.ServerMetrics {
	return &PrometheusMetrics{}
}

// ConnectionOpened records an accepted connection.
func (m *PrometheusMetrics) ConnectionOpened() {
	connectionsOpened.Inc()
	connectionsActive.Inc()
}

// ConnectionClosed records the end of a connection task.
func (m *PrometheusMetrics) ConnectionClosed(outcome, errorCode string, duration time.Duration) {
	connectionsActive.Dec()
	connectionsClosed.WithLabelValues(outcome, errorCode).Inc()
	connectionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RequestServed records a written response. Unknown methods are folded into
// one label value to keep cardinality bounded.
func (m *PrometheusMetrics) RequestServed(method string, statusCode int) {
	requestsServed.WithLabelValues(methodLabel(method), strconv.Itoa(statusCode)).Inc()
}

func methodLabel(method string) string {
	if domain.IsKnownMethod(domain.Method(method)) {
		return method
	}
	return "other"
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
