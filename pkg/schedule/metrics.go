package schedule

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiln_scheduled_task_runs_total",
			Help: "Scheduled task executions by outcome.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiln_scheduled_task_duration_seconds",
			Help:    "Scheduled task execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}

	if err := errors.Join(reg.Register(m.runs), reg.Register(m.duration)); err != nil {
		return nil, err
	}
	return m, nil
}

// observe is safe on a nil receiver.
func (m *metrics) observe(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.runs.WithLabelValues(task, status).Inc()
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}
