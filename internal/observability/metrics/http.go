package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestTotal         *prometheus.CounterVec
	searchTotal         *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	searchResults       *prometheus.HistogramVec
	strategyResolutions *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragindex",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragindex",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total accepted ingest and reprocess requests.",
		},
		[]string{"service", "kind"},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful search requests by type.",
		},
		[]string{"service", "search_type"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragindex",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds by type.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "search_type"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragindex",
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of returned results per search request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "search_type"},
	)
	strategyResolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "strategy",
			Name:      "resolutions_total",
			Help:      "Total chunking strategy resolutions by source and outcome.",
		},
		[]string{"service", "source", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestTotal,
		searchTotal,
		searchDuration,
		searchResults,
		strategyResolutions,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		ingestTotal:         ingestTotal,
		searchTotal:         searchTotal,
		searchDuration:      searchDuration,
		searchResults:       searchResults,
		strategyResolutions: strategyResolutions,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		switch {
		case strings.HasSuffix(path, "/reprocess"):
			return "/v1/documents/{document_id}/reprocess"
		case strings.HasSuffix(path, "/chunks"):
			return "/v1/documents/{document_id}/chunks"
		case strings.HasSuffix(path, "/download"):
			return "/v1/documents/{document_id}/download"
		}
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/collections/"):
		return "/v1/collections/{collection_id}/stats"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIngest(service, kind string) {
	m.ingestTotal.WithLabelValues(service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordSearch(service, searchType string, resultCount int, duration time.Duration) {
	m.searchTotal.WithLabelValues(service, searchType).Inc()
	m.searchResults.WithLabelValues(service, searchType).Observe(float64(resultCount))
	m.searchDuration.WithLabelValues(service, searchType).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordStrategyResolution(service, source, outcome string) {
	m.strategyResolutions.WithLabelValues(service, source, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := w.ResponseWriter.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
