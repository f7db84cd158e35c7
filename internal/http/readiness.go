package http

import (
	"context"
	"time"
)

const readinessTimeout = 2 * time.Second

// checkReadiness pings the store and the folder index. A nil dependency is
// reported as "not configured" and does not fail readiness. Telemetry
// status is reported but never fails readiness.
func checkReadiness(ctx context.Context, deps Deps) ReadyResponse {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: map[string]string{}}
	check := func(name string, fn func(context.Context) error) {
		if fn == nil {
			resp.Checks[name] = "not configured"
			return
		}
		if err := fn(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Checks[name] = "ok"
	}

	var pingStore, pingIndex func(context.Context) error
	if deps.Store != nil {
		pingStore = deps.Store.Ping
	}
	if deps.Index != nil {
		pingIndex = deps.Index.Health
	}
	check("storage", pingStore)
	check("vectorstore", pingIndex)

	resp.Checks["telemetry"] = "not configured"
	if deps.Telemetry != nil {
		resp.Checks["telemetry"] = deps.Telemetry.Status()
	}
	return resp
}
