package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the GCE facade. A nil *Metrics is
// a valid no-op collector.
type Metrics struct {
	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector registered under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of asynchronous operations registered",
			},
			[]string{"operation_type"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of asynchronous operations completed",
			},
			[]string{"operation_type", "result"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		m.operationsStarted,
		m.operationsCompleted,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// OperationStarted records the registration of an operation.
func (m *Metrics) OperationStarted(operationType string) {
	if m == nil {
		return
	}
	m.operationsStarted.WithLabelValues(operationType).Inc()
}

// OperationCompleted records the completion of an operation. result is
// "done" or the error code the operation finished with.
func (m *Metrics) OperationCompleted(operationType, result string) {
	if m == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(operationType, result).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler returns the HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
