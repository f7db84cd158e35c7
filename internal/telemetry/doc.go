// Package telemetry exports csphere traces and metrics over OTLP.
//
// New installs the providers as the otel globals, so the package-level
// tracers in recall, matcher, learning, ingest, vectorstore and worker pick
// them up without being handed a provider:
//
//	tel, err := telemetry.New(ctx, cfg, telemetry.ProcessFrom("serve", appCfg), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Every span carries the process description (csphere.role, the index and
// embedding providers, the NATS stream) as resource attributes. Prometheus
// counters are registered separately through promauto and served on
// /metrics; the otel meter provider carries the oracle, HTTP and workflow
// instruments.
//
// Exporter setup failures do not stop csphere. The instance reports
// "degraded: <reason>" through Status, which /ready shows without failing.
//
// Tests record spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	... exercise code ...
//	tt.AssertSpanAttribute(t, "Matcher.Match", "match.outcome", "score")
package telemetry
