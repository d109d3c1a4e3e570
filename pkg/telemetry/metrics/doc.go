// Package metrics provides Prometheus metrics for Conduit.
//
// # Metrics Categories
//
//   - Connection Metrics: active channels, accepted connections, channel
//     lifetime, decoded and rejected frames, pipeline assembly
//   - TLS Metrics: refresh attempts and duration, context generation,
//     certificate expiry
//   - Job Metrics: scheduled job runs and duration
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	asm, _ := pipeline.NewAssembler(opts, handlers, pipeline.WithObserver(collector))
//	manager := tls.NewManager(source, tls.ManagerOptions{Observer: collector})
//	sched := scheduler.New(scheduler.WithObserver(collector))
//
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// A Collector built from a config with Enabled set to false accepts every
// observation and records nothing.
package metrics
