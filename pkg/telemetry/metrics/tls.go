package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// TLSMetrics tracks the TLS context lifecycle.
//
// Metrics:
//   - conduit_broker_tls_refresh_total: refresh attempts by result
//   - conduit_broker_tls_refresh_duration_seconds: refresh duration
//   - conduit_broker_tls_rebuilds_total: refreshes that published a new context
//   - conduit_broker_tls_context_generation: generation of the served context
//   - conduit_broker_tls_certificate_expiry_timestamp_seconds: NotAfter of
//     the served certificate
type TLSMetrics struct {
	refreshTotal      *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	rebuildsTotal     prometheus.Counter
	generation        prometheus.Gauge
	certificateExpiry prometheus.Gauge
}

// NewTLSMetrics creates and registers TLS metrics.
func NewTLSMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TLSMetrics {
	tm := &TLSMetrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tls_refresh_total",
				Help:      "Total number of TLS context refresh attempts",
			},
			[]string{"result"},
		),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tls_refresh_duration_seconds",
			Help:      "Duration of TLS context refreshes in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		rebuildsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tls_rebuilds_total",
			Help:      "Total number of refreshes that published a new TLS context",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tls_context_generation",
			Help:      "Generation of the TLS context currently served",
		}),
		certificateExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tls_certificate_expiry_timestamp_seconds",
			Help:      "Expiry of the served certificate as a Unix timestamp",
		}),
	}

	registry.MustRegister(
		tm.refreshTotal,
		tm.refreshDuration,
		tm.rebuildsTotal,
		tm.generation,
		tm.certificateExpiry,
	)

	return tm
}

// RecordRefresh records one refresh attempt.
func (tm *TLSMetrics) RecordRefresh(rebuilt bool, generation uint64, elapsed time.Duration, err error) {
	tm.refreshTotal.WithLabelValues(resultLabel(err)).Inc()
	tm.refreshDuration.Observe(elapsed.Seconds())
	if rebuilt {
		tm.rebuildsTotal.Inc()
	}
	if generation > 0 {
		tm.generation.Set(float64(generation))
	}
}
