// Package metrics defines the Prometheus collectors recorded by the
// ingestion pipeline, the embedding gateway and the responder, and exposes
// an HTTP handler for scraping.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be constructed without metrics in tests and one-shot commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docreply"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	IngestionsTotal      *prometheus.CounterVec
	IngestionDuration    prometheus.Histogram
	ChunksWrittenTotal   prometheus.Counter
	EmbeddingCallsTotal  *prometheus.CounterVec
	EmbeddingRetries     prometheus.Counter
	EmbeddingGroupsTotal prometheus.Counter
	ResponsesTotal       *prometheus.CounterVec
	ResponseDuration     prometheus.Histogram
	JobsInFlight         prometheus.Gauge
}

// New creates all collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestions_total",
				Help:      "Document ingestions by result (succeeded, empty, failed).",
			},
			[]string{"result"},
		),
		IngestionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_duration_seconds",
				Help:      "End-to-end ingestion latency in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300, 600},
			},
		),
		ChunksWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_written_total",
				Help:      "Total number of chunks committed to storage.",
			},
		),
		EmbeddingCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_calls_total",
				Help:      "Embedding provider calls by result (ok, rate_limited, error).",
			},
			[]string{"result"},
		),
		EmbeddingRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_retries_total",
				Help:      "Embedding calls retried after a retryable error.",
			},
		),
		EmbeddingGroupsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_groups_total",
				Help:      "Batch embedding groups issued.",
			},
		),
		ResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Inbound events handled by outcome.",
			},
			[]string{"outcome"},
		),
		ResponseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_duration_seconds",
				Help:      "Inbound event handling latency in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ingestion_jobs_in_flight",
				Help:      "Background ingestion jobs queued or running.",
			},
		),
	}

	m.registry.MustRegister(
		m.IngestionsTotal,
		m.IngestionDuration,
		m.ChunksWrittenTotal,
		m.EmbeddingCallsTotal,
		m.EmbeddingRetries,
		m.EmbeddingGroupsTotal,
		m.ResponsesTotal,
		m.ResponseDuration,
		m.JobsInFlight,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler that serves the collectors.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Ingestion records one finished ingestion.
func (m *Metrics) Ingestion(result string, elapsed time.Duration, chunks int) {
	if m == nil {
		return
	}
	m.IngestionsTotal.WithLabelValues(result).Inc()
	m.IngestionDuration.Observe(elapsed.Seconds())
	if chunks > 0 {
		m.ChunksWrittenTotal.Add(float64(chunks))
	}
}

// EmbeddingCall records one provider call.
func (m *Metrics) EmbeddingCall(result string) {
	if m == nil {
		return
	}
	m.EmbeddingCallsTotal.WithLabelValues(result).Inc()
}

// EmbeddingRetry records one retry.
func (m *Metrics) EmbeddingRetry() {
	if m == nil {
		return
	}
	m.EmbeddingRetries.Inc()
}

// EmbeddingGroup records one batch group.
func (m *Metrics) EmbeddingGroup() {
	if m == nil {
		return
	}
	m.EmbeddingGroupsTotal.Inc()
}

// Response records one handled inbound event.
func (m *Metrics) Response(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ResponsesTotal.WithLabelValues(outcome).Inc()
	m.ResponseDuration.Observe(elapsed.Seconds())
}

// JobQueued and JobFinished track background ingestion jobs.
func (m *Metrics) JobQueued() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
}
