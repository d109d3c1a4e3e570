// Package server runs the listeners of a broker.
//
// Every configured listener gets its own pipeline.Assembler built from the
// listener's options; the TLS context, scheduler, metrics collector and
// health checker are shared. When any listener terminates TLS the context is
// built before binding, and the server refuses to start if that fails. The
// context is then refreshed on a fixed delay, optionally also when the
// credential files change, and the served certificate's expiry is checked
// on a cron schedule.
//
// Basic usage:
//
//	srv, err := server.New(cfg, handlers, server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
//
// Connections over broker.max_connections or broker.max_connections_per_ip
// are closed right after accept.
//
// The admin endpoint, when configured, serves Prometheus metrics, the health
// probes and version information. Metrics and version require a bearer
// token once telemetry.admin_tokens is set.
package server
