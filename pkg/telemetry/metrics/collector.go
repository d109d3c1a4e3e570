package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/conduit/pkg/config"
)

// Collector owns every Conduit metric. It implements the observer
// interfaces of the pipeline, security/tls and scheduler packages.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	connectionMetrics *ConnectionMetrics
	tlsMetrics        *TLSMetrics
	jobMetrics        *JobMetrics
}

// NewCollector creates a collector registering its metrics with registry.
// If registry is nil a new registry is created, with the Go runtime and
// process collectors added.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	return &Collector{
		config:            cfg,
		registry:          registry,
		connectionMetrics: NewConnectionMetrics(cfg, registry),
		tlsMetrics:        NewTLSMetrics(cfg, registry),
		jobMetrics:        NewJobMetrics(cfg, registry),
	}
}

// RecordAcceptError counts a failed Accept on a listener.
func (c *Collector) RecordAcceptError(listener string) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.acceptErrors.WithLabelValues(listener).Inc()
}

// RecordConnectionRejected counts a connection closed because a connection
// limit was reached.
func (c *Collector) RecordConnectionRejected(listener, reason string) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.rejected.WithLabelValues(listener, reason).Inc()
}

// ObserveAssembly records a pipeline assembly.
func (c *Collector) ObserveAssembly(listener string, elapsed time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.RecordAssembly(listener, elapsed, err)
}

// ObserveChannelOpened records a channel starting to serve.
func (c *Collector) ObserveChannelOpened(listener string) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.RecordOpened(listener)
}

// ObserveChannelClosed records a channel closing after lifetime.
func (c *Collector) ObserveChannelClosed(listener string, lifetime time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.RecordClosed(listener, lifetime)
}

// ObserveFrame records a decoded frame of size bytes, prefix included.
func (c *Collector) ObserveFrame(listener string, size int) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.RecordFrame(listener, size)
}

// ObserveFrameRejected records a frame over the size limit.
func (c *Collector) ObserveFrameRejected(listener string) {
	if !c.config.Enabled {
		return
	}
	c.connectionMetrics.framesRejected.WithLabelValues(listener).Inc()
}

// ObserveRefresh records a TLS context refresh attempt.
func (c *Collector) ObserveRefresh(rebuilt bool, generation uint64, elapsed time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.tlsMetrics.RecordRefresh(rebuilt, generation, elapsed, err)
}

// ObserveCertificateExpiry records when the served certificate expires.
func (c *Collector) ObserveCertificateExpiry(notAfter time.Time) {
	if !c.config.Enabled {
		return
	}
	c.tlsMetrics.certificateExpiry.Set(float64(notAfter.Unix()))
}

// ObserveRun records a scheduled job run.
func (c *Collector) ObserveRun(job string, elapsed time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.jobMetrics.RecordRun(job, elapsed, err)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
