package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/pkg/config"
)

// JobMetrics tracks scheduled background jobs.
//
// Metrics:
//   - conduit_broker_job_runs_total: runs by job and result
//   - conduit_broker_job_duration_seconds: run duration by job
type JobMetrics struct {
	runsTotal *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewJobMetrics creates and registers job metrics.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_runs_total",
				Help:      "Total number of scheduled job runs",
			},
			[]string{"job", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(jm.runsTotal, jm.duration)
	return jm
}

// RecordRun records one job run.
func (jm *JobMetrics) RecordRun(job string, elapsed time.Duration, err error) {
	jm.runsTotal.WithLabelValues(job, resultLabel(err)).Inc()
	jm.duration.WithLabelValues(job).Observe(elapsed.Seconds())
}
