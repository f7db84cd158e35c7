package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts handled queue messages by task type and result
	// (ok, retry, terminated).
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csphere",
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Queue messages handled, by task type and result.",
		},
		[]string{"task", "result"},
	)

	// ProcessDuration observes processor latency per task type.
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csphere",
			Subsystem: "worker",
			Name:      "process_duration_seconds",
			Help:      "Time spent processing a queue message.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// InFlight is the number of messages currently being processed.
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "csphere",
			Subsystem: "worker",
			Name:      "in_flight",
			Help:      "Queue messages currently being processed.",
		},
	)
)
