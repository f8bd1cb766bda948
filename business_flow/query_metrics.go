package businessflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Time spent per engine stage (resolve, spatial, ids, count, hydrate) and search kind
	queryStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_query_stage_duration_seconds",
			Help:    "Duration of source and candidate query stages in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "stage"},
	)

	// Ordered ID snapshot lookups by outcome: hit, miss, stale
	queryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_query_cache_lookups_total",
			Help: "Query cache lookups partitioned by outcome",
		},
		[]string{"outcome"},
	)

	queryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_query_errors_total",
			Help: "Failed searches partitioned by kind and error kind",
		},
		[]string{"kind", "error"},
	)
)

// observeStage records the time since start for one stage
func observeStage(kind, stage string, start time.Time) {
	queryStageDuration.WithLabelValues(kind, stage).Observe(time.Since(start).Seconds())
}

func countCacheLookup(outcome string) {
	queryCacheLookups.WithLabelValues(outcome).Inc()
}

func countQueryError(kind string, err error) {
	queryErrors.WithLabelValues(kind, errorKind(err)).Inc()
}
