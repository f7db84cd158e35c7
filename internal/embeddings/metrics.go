package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/crosve/Csphere/internal/embeddings"

// Metrics records oracle latency, input size and errors.
type Metrics struct {
	meter      metric.Meter
	logger     *zap.Logger
	duration   metric.Float64Histogram
	inputChars metric.Int64Histogram
	errors     metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"csphere.oracle.duration_seconds",
		metric.WithDescription("Duration of oracle calls in seconds, labeled by provider, model and operation (embed, summarize)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.inputChars, err = m.meter.Int64Histogram(
		"csphere.oracle.input_chars",
		metric.WithDescription("Length of text sent to the oracle"),
		metric.WithUnit("{char}"),
		metric.WithExplicitBucketBoundaries(64, 256, 1024, 4096, 16384, 65536),
	)
	if err != nil {
		m.logger.Warn("failed to create input size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"csphere.oracle.errors_total",
		metric.WithDescription("Total oracle errors by provider, model and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// Record records one oracle call.
func (m *Metrics) Record(ctx context.Context, provider, model, operation string, duration time.Duration, inputLen int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if inputLen > 0 && m.inputChars != nil {
		m.inputChars.Record(ctx, int64(inputLen), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
