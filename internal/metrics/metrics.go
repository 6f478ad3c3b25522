// Package metrics registers the Prometheus collectors for feed ingestion.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoom_feed_fetches_total",
			Help: "Feed fetch attempts by host and outcome",
		},
		[]string{"host", "outcome"}, // "ok", "error", "rejected"
	)

	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consoom_feed_fetch_duration_seconds",
			Help:    "Duration of feed fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consoom_circuit_breaker_state",
			Help: "Circuit breaker state per host (0=closed, 1=half-open, 2=open)",
		},
		[]string{"host"},
	)

	AccountSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoom_account_syncs_total",
			Help: "Account sync attempts by provider and outcome",
		},
		[]string{"provider", "outcome"}, // "success", "failure"
	)

	ConsumptionWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoom_consumption_writes_total",
			Help: "Consumption log writes by media type and result",
		},
		[]string{"media_type", "result"}, // "inserted", "duplicate"
	)

	CatalogInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoom_catalog_inserts_total",
			Help: "Catalog reconciliations by source and result",
		},
		[]string{"source", "result"}, // "created", "existing"
	)

	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoom_import_rows_total",
			Help: "Batch import rows processed by media type",
		},
		[]string{"media_type"},
	)
)
