package capture

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	written   prometheus.Counter
	failed    prometheus.Counter
	abandoned prometheus.Counter
	running   prometheus.GaugeFunc
}

func newMetrics(reg prometheus.Registerer, running func() float64) *metrics {
	m := &metrics{
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelock", Subsystem: "capture", Name: "written_total",
			Help: "Screenshots successfully written.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelock", Subsystem: "capture", Name: "failed_total",
			Help: "Screenshots that could not be encoded or written.",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framelock", Subsystem: "capture", Name: "abandoned_total",
			Help: "Screenshots dropped because no buffer could be allocated.",
		}),
		running: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "framelock", Subsystem: "capture", Name: "running_slots",
			Help: "Capture slots currently writing a file.",
		}, running),
	}
	if reg != nil {
		reg.MustRegister(m.written, m.failed, m.abandoned, m.running)
	}
	return m
}
