package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "hearth"

//nolint:gochecknoglobals // Prometheus collectors are process-wide by design of the default registry
var (
	// PipelineRequests counts completed pipeline runs.
	// Labels: path (hit, miss), mode (stream, complete), outcome (ok, error).
	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total number of pipeline runs by cache path, mode and outcome",
		},
		[]string{"path", "mode", "outcome"},
	)

	// CacheLookups counts semantic cache lookups.
	// Labels: result (hit, miss, error, skipped).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of semantic cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheInserts counts insert attempts.
	// Labels: result (ok, error).
	CacheInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "inserts_total",
			Help:      "Total number of semantic cache insert attempts by result",
		},
		[]string{"result"},
	)

	// CacheEvictions counts entries evicted by the capacity bound.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of semantic cache entries evicted by capacity",
		},
	)

	// CacheEntries reports the current number of cached answers.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries in the semantic cache",
		},
	)

	// ProviderDuration tracks upstream call latency.
	// Labels: provider, mode (stream, complete), outcome (ok, error, cancelled).
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream provider calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "mode", "outcome"},
	)

	// ProviderCost accumulates the priced cost of provider answers in USD.
	// Labels: model.
	ProviderCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "provider",
			Name:      "cost_usd_total",
			Help:      "Total priced cost of provider answers in USD",
		},
		[]string{"model"},
	)

	// PricingMisses counts provider answers for models without pricing.
	// Labels: model.
	PricingMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "provider",
			Name:      "unpriced_answers_total",
			Help:      "Total provider answers whose model has no registered pricing",
		},
		[]string{"model"},
	)

	// EmbeddingDuration tracks embedding latency.
	// Labels: generator, outcome (ok, error).
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Duration of embedding generation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"generator", "outcome"},
	)

	// CompressionBytes accumulates message bytes before and after compression.
	// Labels: stage (original, compressed).
	CompressionBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compression",
			Name:      "bytes_total",
			Help:      "Total message bytes seen by the compressor, before and after",
		},
		[]string{"stage"},
	)

	// CompressionFallbacks counts transforms that fell back to pass-through.
	// Labels: op (compress, decompress).
	CompressionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "compression",
			Name:      "fallbacks_total",
			Help:      "Total number of compression operations that fell back to the input text",
		},
		[]string{"op"},
	)

	// AuditRecords counts audit records by result.
	// Labels: result (written, dropped, error).
	AuditRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Total number of audit records by delivery result",
		},
		[]string{"result"},
	)
)
