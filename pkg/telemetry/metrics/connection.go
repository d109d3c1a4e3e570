package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// ConnectionMetrics tracks accepted connections and their frames.
//
// Metrics:
//   - conduit_broker_channels_active: channels currently served, by listener
//   - conduit_broker_channels_total: channels served, by listener
//   - conduit_broker_channel_duration_seconds: channel lifetime
//   - conduit_broker_accept_errors_total: failed accepts
//   - conduit_broker_connections_rejected_total: connections refused by a limit
//   - conduit_broker_pipeline_assembly_total: assemblies by result
//   - conduit_broker_pipeline_assembly_duration_seconds: assembly time
//   - conduit_broker_frames_total: decoded frames
//   - conduit_broker_frame_size_bytes: decoded frame size
//   - conduit_broker_frames_rejected_total: frames over the size limit
type ConnectionMetrics struct {
	channelsActive   *prometheus.GaugeVec
	channelsTotal    *prometheus.CounterVec
	channelDuration  *prometheus.HistogramVec
	acceptErrors     *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	assemblyTotal    *prometheus.CounterVec
	assemblyDuration *prometheus.HistogramVec
	framesTotal      *prometheus.CounterVec
	frameSize        *prometheus.HistogramVec
	framesRejected   *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics.
func NewConnectionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ConnectionMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}
	listener := []string{"listener"}

	cm := &ConnectionMetrics{
		channelsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts(opts("channels_active", "Number of channels currently being served")),
			listener,
		),
		channelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("channels_total", "Total number of channels served")),
			listener,
		),
		channelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "channel_duration_seconds",
				Help:      "Lifetime of channels in seconds",
				Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 3600, 14400},
			},
			listener,
		),
		acceptErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("accept_errors_total", "Total number of failed accepts")),
			listener,
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("connections_rejected_total", "Total number of connections refused by a connection limit")),
			[]string{"listener", "reason"},
		),
		assemblyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("pipeline_assembly_total", "Total number of pipeline assemblies")),
			[]string{"listener", "result"},
		),
		assemblyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pipeline_assembly_duration_seconds",
				Help:      "Time spent attaching pipeline stages in seconds",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			},
			listener,
		),
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("frames_total", "Total number of decoded frames")),
			listener,
		),
		frameSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "frame_size_bytes",
				Help:      "Size of decoded frames in bytes, length prefix included",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
			},
			listener,
		),
		framesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("frames_rejected_total", "Total number of frames rejected for exceeding the maximum frame length")),
			listener,
		),
	}

	registry.MustRegister(
		cm.channelsActive,
		cm.channelsTotal,
		cm.channelDuration,
		cm.acceptErrors,
		cm.rejected,
		cm.assemblyTotal,
		cm.assemblyDuration,
		cm.framesTotal,
		cm.frameSize,
		cm.framesRejected,
	)

	return cm
}

// RecordAssembly records one pipeline assembly.
func (cm *ConnectionMetrics) RecordAssembly(listener string, elapsed time.Duration, err error) {
	cm.assemblyTotal.WithLabelValues(listener, resultLabel(err)).Inc()
	cm.assemblyDuration.WithLabelValues(listener).Observe(elapsed.Seconds())
}

// RecordOpened records a channel starting to serve.
func (cm *ConnectionMetrics) RecordOpened(listener string) {
	cm.channelsActive.WithLabelValues(listener).Inc()
	cm.channelsTotal.WithLabelValues(listener).Inc()
}

// RecordClosed records a channel closing.
func (cm *ConnectionMetrics) RecordClosed(listener string, lifetime time.Duration) {
	cm.channelsActive.WithLabelValues(listener).Dec()
	cm.channelDuration.WithLabelValues(listener).Observe(lifetime.Seconds())
}

// RecordFrame records a decoded frame.
func (cm *ConnectionMetrics) RecordFrame(listener string, size int) {
	cm.framesTotal.WithLabelValues(listener).Inc()
	cm.frameSize.WithLabelValues(listener).Observe(float64(size))
}
