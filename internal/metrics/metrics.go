package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_total",
			Help: "Total number of envelopes received",
		},
		[]string{"status"},
	)

	EnvelopeBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelope_bytes_total",
			Help: "Total bytes of envelope bodies received, by content encoding",
		},
		[]string{"encoding"},
	)

	ItemsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_items_decoded_total",
			Help: "Total number of envelope items decoded",
		},
		[]string{"type"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_ingest_duration_seconds",
			Help:    "Duration of envelope decode and persist in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Classification metrics
	EventsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_enqueued_total",
			Help: "Total number of events enqueued for dispatch",
		},
		[]string{"level"},
	)

	ClassificationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_classification_failures_total",
			Help: "Total number of items that could not be classified",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Current number of events waiting for dispatch",
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dispatch_total",
			Help: "Total number of sender invocations",
		},
		[]string{"sender", "level", "result"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_dispatch_duration_seconds",
			Help:    "Duration of a single sender invocation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sender"},
	)

	EventsUnroutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_unrouted_total",
			Help: "Total number of dispatched events with no sender registered for their level",
		},
		[]string{"level"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Total number of envelopes rejected by the per-project rate limit",
		},
		[]string{"project"},
	)

	// Circuit breaker metrics
	CircuitOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_open_total",
			Help: "Total number of sends skipped because the circuit was open",
		},
		[]string{"sender"},
	)
)
