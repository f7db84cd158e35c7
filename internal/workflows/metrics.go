package workflows

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/crosve/Csphere/internal/workflows"

// Metrics for the user profile refresh workflow
var (
	refreshUsersCounter   metric.Int64Counter
	activityDuration      metric.Float64Histogram
	activityErrorCounter  metric.Int64Counter
	refreshItemsHistogram metric.Int64Histogram
)

// initMetrics initializes OpenTelemetry metrics for workflows.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	refreshUsersCounter, err = meter.Int64Counter(
		"csphere.workflows.user_profile_refresh.users",
		metric.WithDescription("Users processed by the profile refresh, by result"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create refresh users counter: %v", err))
	}

	refreshItemsHistogram, err = meter.Int64Histogram(
		"csphere.workflows.user_profile_refresh.items",
		metric.WithDescription("New saved items folded into one user profile"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create refresh items histogram: %v", err))
	}

	activityDuration, err = meter.Float64Histogram(
		"csphere.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"csphere.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}
}

func init() {
	initMetrics()
}
