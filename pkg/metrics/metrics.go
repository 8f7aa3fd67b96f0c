package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsIngested counts accepted sensor readings by sensor kind and zone.
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meteohub_readings_ingested_total",
			Help: "Total number of sensor readings accepted into the store",
		},
		[]string{"sensor_kind", "zone"},
	)

	// IngestRejected counts rejected payloads by reason (no_known_keys|bad_value|bad_payload).
	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meteohub_ingest_rejected_total",
			Help: "Total number of rejected ingest payloads",
		},
		[]string{"reason"},
	)

	// QueryLatency measures query engine latencies by query kind (current|ago|trend|overview).
	QueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meteohub_query_latency_seconds",
			Help:    "Query engine latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// CacheEvents counts cache lookups by result (hit|miss|coalesced).
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meteohub_cache_events_total",
			Help: "Total number of query cache events",
		},
		[]string{"result"},
	)

	// RetentionDeleted counts readings removed by the retention sweeper.
	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meteohub_retention_deleted_total",
			Help: "Total number of readings deleted by retention sweeps",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meteohub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
