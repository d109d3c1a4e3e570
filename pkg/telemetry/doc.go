// Package telemetry groups the broker's observability packages.
//
// # Components
//
//   - logging: slog construction, secret redaction and per-connection context
//   - metrics: Prometheus collector for channels, frames, TLS refresh and jobs
//   - tracing: OpenTelemetry provider and W3C trace context for admin requests
//   - health: liveness and readiness checks with HTTP probes
//
// # Usage
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//		return err
//	}
//	slog.SetDefault(logger)
//
//	tp, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tp.Shutdown(context.Background())
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//
// The collector implements the observer interfaces of pkg/pipeline,
// pkg/security/tls and pkg/scheduler, so passing it to those packages is all
// the wiring metrics need. Spans are created through otel.Tracer and are
// exported once tracing.New has installed a provider.
//
// # Redaction
//
// Log attributes whose key names a secret (passwords, key store passwords,
// tokens) are masked by the handler returned from logging.New, which lets
// the TLS credential snapshot be logged as a whole.
package telemetry
