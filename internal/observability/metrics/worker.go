package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec

	embedBatches *prometheus.CounterVec
	dedupLookups *prometheus.CounterVec
	chunksStored *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	embedBatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "embed_batches_total",
			Help:      "Total embedding batches by outcome.",
		},
		[]string{"service", "outcome"},
	)
	dedupLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "dedup_lookups_total",
			Help:      "Total dedup cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	chunksStored := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "worker",
			Name:      "chunks_stored_total",
			Help:      "Total chunks persisted and indexed.",
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, embedBatches, dedupLookups, chunksStored)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		embedBatches:    embedBatches,
		dedupLookups:    dedupLookups,
		chunksStored:    chunksStored,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordEmbedBatch(service string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.embedBatches.WithLabelValues(service, outcome).Inc()
}

func (m *WorkerMetrics) RecordDedupLookup(service string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.dedupLookups.WithLabelValues(service, result).Inc()
}

func (m *WorkerMetrics) RecordChunksStored(service string, count int) {
	if count <= 0 {
		return
	}
	m.chunksStored.WithLabelValues(service).Add(float64(count))
}
