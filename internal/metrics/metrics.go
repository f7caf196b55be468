package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "propsearch"

// Search outcomes
const (
	OutcomeOK            = "ok"
	OutcomeEmpty         = "empty"
	OutcomeInvalid       = "invalid"
	OutcomeRetrievalFail = "retrieval_failed"
)

var (
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_requests_total",
		Help:      "Search requests by outcome.",
	}, []string{"outcome"})

	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_stage_seconds",
		Help:      "Latency of each search pipeline stage.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"stage"})

	RelaxationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relaxation_steps_total",
		Help:      "Filter relaxation steps applied, by step.",
	}, []string{"step"})

	ExtractionDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_degraded_total",
		Help:      "Queries that fell back to pure semantic search.",
	})

	EmbeddingCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_total",
		Help:      "Query embedding cache lookups by result.",
	}, []string{"result"})

	ListingsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_indexed_total",
		Help:      "Listings processed by ingestion, by result.",
	}, []string{"result"})
)
