package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the export pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	exportCreated   *prometheus.CounterVec
	exportCompleted *prometheus.CounterVec
	exportFailed    *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diff_cache_hits_total",
		Help: "Total diff cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diff_cache_misses_total",
		Help: "Total diff cache misses",
	})

	exportCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_created_total",
		Help: "Total export jobs created",
	}, []string{"variant"})

	exportCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_completed_total",
		Help: "Total export jobs completed",
	}, []string{"variant"})

	exportFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_failed_total",
		Help: "Total export jobs failed",
	}, []string{"variant"})

	renderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "export_render_duration_seconds",
		Help:    "Duration of export rendering in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"variant"})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, exportCreated, exportCompleted, exportFailed, renderDuration)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		exportCreated:   exportCreated,
		exportCompleted: exportCompleted,
		exportFailed:    exportFailed,
		renderDuration:  renderDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records diff cache hit/miss counts.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ExportJobCreated counts a new export job.
func (m *MetricsService) ExportJobCreated(variant string) {
	if m == nil {
		return
	}
	m.exportCreated.WithLabelValues(variant).Inc()
}

// ExportJobCompleted counts a successful render and its duration.
func (m *MetricsService) ExportJobCompleted(variant string, duration time.Duration) {
	if m == nil {
		return
	}
	m.exportCompleted.WithLabelValues(variant).Inc()
	m.renderDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// ExportJobFailed counts a failed job.
func (m *MetricsService) ExportJobFailed(variant string) {
	if m == nil {
		return
	}
	m.exportFailed.WithLabelValues(variant).Inc()
}
