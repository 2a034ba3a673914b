package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Reindexing
	BatchesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trindex_batches_total",
		Help: "The total number of reindex batches by outcome",
	}, []string{"outcome"})

	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trindex_batch_duration_seconds",
		Help:    "The time spent rebuilding and committing one batch",
		Buckets: prometheus.DefBuckets,
	})

	ResourcesReindexed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trindex_resources_reindexed_total",
		Help: "The total number of resources rebuilt",
	})

	DocumentsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trindex_documents_written_total",
		Help: "The total number of documents written to the index",
	})

	BlankNodesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trindex_blank_nodes_skipped_total",
		Help: "The total number of anonymous resources skipped",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trindex_queue_depth",
		Help: "The number of resources waiting for the next batch",
	})

	// Searching
	Searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trindex_searches_total",
		Help: "The total number of searches by outcome",
	}, []string{"outcome"})

	SearchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trindex_search_latency_seconds",
		Help:    "The latency of searches",
		Buckets: prometheus.DefBuckets,
	})

	// Maintenance
	Optimizations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trindex_optimizations_total",
		Help: "The total number of index optimizations by outcome",
	}, []string{"outcome"})

	FullReindexes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trindex_full_reindexes_total",
		Help: "The total number of full reindexes by outcome",
	}, []string{"outcome"})
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

func init() {
	prometheus.MustRegister(BatchesProcessed)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(ResourcesReindexed)
	prometheus.MustRegister(DocumentsWritten)
	prometheus.MustRegister(BlankNodesSkipped)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(Searches)
	prometheus.MustRegister(SearchLatency)
	prometheus.MustRegister(Optimizations)
	prometheus.MustRegister(FullReindexes)
}
