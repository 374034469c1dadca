package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_generation_runs_total",
			Help: "Completed all-users generation runs",
		},
	)

	generationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_generation_failures_total",
			Help: "Per-member generation failures inside batch runs",
		},
	)

	matchesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_matches_generated_total",
			Help: "Pending match records persisted by the pipeline",
		},
	)

	scoreCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_score_cache_hits_total",
			Help: "Composite scores served from the per-day cache",
		},
	)

	scoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_composite_scores",
			Help:    "Distribution of persisted composite scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	memberActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_member_actions_total",
			Help: "Member actions recorded on match pairs",
		},
		[]string{"action"},
	)

	mutualMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_mutual_matches_total",
			Help: "Newly established mutual matches",
		},
	)
)

func recordAction(action string) {
	memberActions.WithLabelValues(action).Inc()
}

func recordMutualMatch() {
	mutualMatches.Inc()
}
