package matcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchesTotal counts Match calls by outcome.
	// Labels: outcome (pattern, score, explicit, already_linked, no_eligible_folders, no_confident_match, error)
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "matcher",
			Name:      "matches_total",
			Help:      "Total number of folder match attempts",
		},
		[]string{"outcome"},
	)

	// MatchDuration tracks end-to-end match latency.
	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "csphere",
			Subsystem: "matcher",
			Name:      "duration_seconds",
			Help:      "Duration of folder matching in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RemovalsTotal counts manual removals.
	// Labels: result (penalized, skipped, not_found, error)
	RemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "matcher",
			Name:      "removals_total",
			Help:      "Total number of items removed from folders",
		},
		[]string{"result"},
	)
)
