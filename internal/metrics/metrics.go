package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus instruments. Ingestion counters are
// labeled by record kind, derivation counters by job name.
type Metrics struct {
	PagesFetched     *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec
	RecordsSeen      *prometheus.CounterVec
	RecordsPassed    *prometheus.CounterVec
	RecordsFailed    *prometheus.CounterVec
	RecordsLoaded    *prometheus.CounterVec
	DerivationRuns   *prometheus.CounterVec
	DerivationErrors *prometheus.CounterVec
	DerivedRows      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_pages_fetched_total",
			Help: "Provider pages fetched, by record kind.",
		}, []string{"kind"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_fetch_failures_total",
			Help: "Window fetches that exhausted retries, by record kind.",
		}, []string{"kind"}),
		RecordsSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_seen_total",
			Help: "Records received from sources, by record kind.",
		}, []string{"kind"}),
		RecordsPassed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_passed_total",
			Help: "Records that passed validation, by record kind.",
		}, []string{"kind"}),
		RecordsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_failed_total",
			Help: "Records rejected by validation, by record kind.",
		}, []string{"kind"}),
		RecordsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_loaded_total",
			Help: "Rows written to the raw logs, by record kind.",
		}, []string{"kind"}),
		DerivationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "derive_runs_total",
			Help: "Derivation passes executed, by job.",
		}, []string{"job"}),
		DerivationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "derive_errors_total",
			Help: "Derivation passes aborted with an error, by job.",
		}, []string{"job"}),
		DerivedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "derive_rows_written_total",
			Help: "Derived rows upserted, by job.",
		}, []string{"job"}),
	}
}

// NewDefault registers on the default prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
