package recommend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journez_pipeline_runs_total",
			Help: "Total number of recommendation pipeline runs by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "journez_generation_duration_seconds",
			Help:    "Latency of generative model calls.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider", "outcome"},
	)

	placeLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journez_place_lookups_total",
			Help: "Total number of place directory lookups by outcome.",
		},
		[]string{"outcome"},
	)

	placeLookupRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journez_place_lookup_retries_total",
		Help: "Total number of retried place directory lookups.",
	})

	placeLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journez_place_lookup_duration_seconds",
		Help:    "Latency of a place lookup including retries.",
		Buckets: prometheus.DefBuckets,
	})

	extractedItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journez_extracted_items",
		Help:    "Number of items extracted from one model answer.",
		Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
	})
)
