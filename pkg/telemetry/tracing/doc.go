// Package tracing installs the OpenTelemetry tracer provider.
//
// Conduit creates spans for pipeline assembly ("pipeline.assemble") and TLS
// context refreshes ("tls.refresh"). They are exported over OTLP gRPC when
// tracing is enabled:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "localhost:4317"
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Usage:
//
//	tp, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tp.Shutdown(context.Background())
//
// Connections carry no trace context of their own, so no propagator is
// installed.
package tracing
