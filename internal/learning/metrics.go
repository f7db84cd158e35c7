package learning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts profile update attempts by outcome.
	// Labels: kind (reinforce, penalize, metadata, initialize, clear), result (updated, skipped, conflict, error)
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "learning",
			Name:      "updates_total",
			Help:      "Total number of folder profile updates",
		},
		[]string{"kind", "result"},
	)

	// ConflictsTotal counts lost compare-and-swap races that were retried.
	ConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "learning",
			Name:      "conflicts_total",
			Help:      "Total number of folder version conflicts during profile updates",
		},
	)

	// UserRefreshesTotal counts user profile refreshes.
	// Labels: result (updated, skipped, error)
	UserRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "learning",
			Name:      "user_refreshes_total",
			Help:      "Total number of user profile refreshes",
		},
		[]string{"result"},
	)
)
