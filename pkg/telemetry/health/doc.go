// Package health provides the liveness and readiness probes of the admin
// endpoint.
//
//   - /health: liveness, 200 while the process runs
//   - /ready: readiness, 200 once startup finished and every registered
//     check passes, 503 otherwise
//   - /version: build information
//
// Components register checks by name:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("tls", manager.Check)
//	health.MountProbes(mux, cfg.Telemetry.Health, checker)
//	...
//	checker.MarkStarted()
//
// Connection handlers use the same checker to decide when to start reading
// from a new connection (see WaitReady).
package health
