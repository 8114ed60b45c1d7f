// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage metrics
	StorageCallsTotal      *prometheus.CounterVec
	StorageFallbacksTotal  *prometheus.CounterVec
	TransientEvictionTotal *prometheus.CounterVec

	// Business metrics
	BlogViewsTotal        *prometheus.CounterVec
	FeedbackRejectedTotal *prometheus.CounterVec
}

// New creates and registers all collectors on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepulse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StorageCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_storage_calls_total",
				Help: "Storage gateway calls by backend, operation and result",
			},
			[]string{"backend", "op", "result"},
		),
		StorageFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_storage_fallbacks_total",
				Help: "Calls re-issued against the transient backend after a persistent failure",
			},
			[]string{"op"},
		),
		TransientEvictionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_transient_evictions_total",
				Help: "Entries evicted from the bounded transient store",
			},
			[]string{"collection"},
		),
		BlogViewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_blog_views_total",
				Help: "Session-scoped blog view recordings by outcome",
			},
			[]string{"result"},
		),
		FeedbackRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_feedback_rejected_total",
				Help: "Rejected feedback submissions by reason",
			},
			[]string{"reason"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.StorageCallsTotal,
			m.StorageFallbacksTotal,
			m.TransientEvictionTotal,
			m.BlogViewsTotal,
			m.FeedbackRejectedTotal,
		)
	}

	return m
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStorageCall records a gateway call against backend.
func (m *Metrics) RecordStorageCall(backend, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StorageCallsTotal.WithLabelValues(backend, op, result).Inc()
}

// RecordFallback records a call served by the transient backend after a failure.
func (m *Metrics) RecordFallback(op string) {
	if m == nil {
		return
	}
	m.StorageFallbacksTotal.WithLabelValues(op).Inc()
}

// RecordEviction records an entry dropped from the transient store.
func (m *Metrics) RecordEviction(collection string) {
	if m == nil {
		return
	}
	m.TransientEvictionTotal.WithLabelValues(collection).Inc()
}

// RecordBlogView records whether a session-scoped view was counted.
func (m *Metrics) RecordBlogView(counted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if counted {
		result = "new"
	}
	m.BlogViewsTotal.WithLabelValues(result).Inc()
}

// RecordFeedbackRejected records a rejected feedback submission.
func (m *Metrics) RecordFeedbackRejected(reason string) {
	if m == nil {
		return
	}
	m.FeedbackRejectedTotal.WithLabelValues(reason).Inc()
}
