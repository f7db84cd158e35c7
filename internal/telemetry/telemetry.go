package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Telemetry owns the process-wide tracer and meter providers. Exporter
// setup failures degrade it; csphere keeps running on the no-op globals.
type Telemetry struct {
	cfg     *Config
	process Process
	logger  *zap.Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	mu      sync.Mutex
	reason  string
	stopped bool
}

// New validates cfg and, when enabled, installs OTLP-backed providers and
// the W3C propagator as the otel globals. The propagator is what carries a
// trace from Publisher.Publish through the NATS headers into the worker.
func New(ctx context.Context, cfg *Config, p Process, logger *zap.Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Telemetry{cfg: cfg, process: p, logger: logger}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg, p)

	spans, err := newSpanExporter(ctx, cfg)
	if err != nil {
		t.degrade("%v", err)
	} else {
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.SampleRate)),
		)
		otel.SetTracerProvider(t.tp)
	}

	metrics, err := newMetricExporter(ctx, cfg)
	if err != nil {
		t.degrade("%v", err)
	} else if metrics != nil {
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics,
				sdkmetric.WithInterval(cfg.MetricsInterval.Duration()))),
		)
		otel.SetMeterProvider(t.mp)
	}

	logger.Info("telemetry started",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.String("role", p.Role),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Bool("metrics", t.mp != nil),
	)
	return t, nil
}

func (t *Telemetry) degrade(format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.reason = reason
	t.mu.Unlock()
	t.logger.Warn("telemetry degraded", zap.String("reason", reason))
}

// Process returns the process description attached to every span.
func (t *Telemetry) Process() Process {
	if t == nil {
		return Process{}
	}
	return t.process
}

// Status summarizes export health for /ready: "disabled", "ok", "stopped"
// or "degraded: <reason>".
func (t *Telemetry) Status() string {
	if t == nil || !t.cfg.Enabled {
		return "disabled"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.stopped:
		return "stopped"
	case t.reason != "":
		return "degraded: " + t.reason
	}
	return "ok"
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown_timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout.Duration())
		defer cancel()
	}

	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}

	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return errors.Join(errs...)
}
