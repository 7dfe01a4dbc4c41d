// Package metrics defines Prometheus collectors for ingestion and archival.
// The /metrics endpoint is served by the HTTP router.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_events_created_total",
		Help: "Events newly persisted to the hot store",
	})
	EventsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_events_duplicate_total",
		Help: "Events rejected as duplicates by the idempotency key",
	})
	IngestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_errors_total",
		Help: "Event inserts that failed for reasons other than duplication",
	})

	ColdInsertRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coldstore_insert_rows_total",
		Help: "Rows written to the cold store",
	})
	ColdInsertErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coldstore_insert_errors_total",
		Help: "Failed cold store batch writes",
	})
	ColdInsertLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coldstore_insert_latency_seconds",
		Help:    "Latency of cold store batch writes",
		Buckets: prometheus.DefBuckets,
	})

	ArchivalRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archival_runs_total",
		Help: "Completed archival runs, including runs with errors",
	})
	ArchivalEventsMoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archival_events_moved_total",
		Help: "Events archived to cold storage and deleted from the hot store",
	})
	ArchivalBatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archival_batch_errors_total",
		Help: "Archival batches that failed on either store",
	})
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once; only the first call registers.
func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		EventsCreated,
		EventsDuplicate,
		IngestErrors,
		ColdInsertRows,
		ColdInsertErrors,
		ColdInsertLatency,
		ArchivalRuns,
		ArchivalEventsMoved,
		ArchivalBatchErrors,
	)
}
