package shutdown

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

func (c *Coordinator) registerMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kiln",
			Name:      "shutdown_in_progress",
			Help:      "1 once the termination sequence has started.",
		}, func() float64 {
			if c.InProgress() {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kiln",
			Name:      "server_handles",
			Help:      "Number of registered listener drain handles.",
		}, func() float64 {
			return float64(c.Handles())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kiln",
			Name:      "scheduled_tasks_running",
			Help:      "Number of scheduled tasks currently executing.",
		}, func() float64 {
			return float64(c.Running())
		}),
	}

	var errs []error
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
