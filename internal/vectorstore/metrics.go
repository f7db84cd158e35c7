package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts index operations.
	// Labels: provider (chromem, qdrant), op (upsert, delete, nearest), result (success, error)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "vectorstore",
			Name:      "queries_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"provider", "op", "result"},
	)

	// QueryDuration tracks index operation latency.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csphere",
			Subsystem: "vectorstore",
			Name:      "query_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	// CircuitOpen is 1 while the qdrant circuit breaker is open.
	CircuitOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "csphere",
			Subsystem: "vectorstore",
			Name:      "circuit_open",
			Help:      "Whether the remote index circuit breaker is open (1) or closed (0)",
		},
	)
)

// observe is deferred with a pointer to the named error result.
func observe(provider, op string, start time.Time, err *error) {
	result := "success"
	if err != nil && *err != nil {
		result = "error"
	}
	QueriesTotal.WithLabelValues(provider, op, result).Inc()
	QueryDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
}
