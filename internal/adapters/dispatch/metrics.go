package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.trai.ch/forge/internal/core/domain"
)

// metrics instruments the agent's stage execution endpoint.
type metrics struct {
	stageExecutions *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	activeJobs      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		stageExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "forge",
				Name:      "stage_executions_total",
				Help:      "Terminal stage executions by stage and status.",
			},
			[]string{"stage", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "forge",
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration of stage executions.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"stage"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "forge",
				Name:      "active_jobs",
				Help:      "Stage jobs currently executing.",
			},
		),
	}

	reg.MustRegister(m.stageExecutions, m.stageDuration, m.activeJobs)
	return m
}

func (m *metrics) observe(stage domain.Stage, status domain.StageStatus, elapsed time.Duration) {
	m.stageExecutions.WithLabelValues(string(stage), string(status)).Inc()
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}
