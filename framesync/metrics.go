package framesync

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	waits     *prometheus.HistogramVec
	broadcast prometheus.Histogram
	loopTime  *prometheus.GaugeVec
	failures  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "framelock", Subsystem: "sync", Name: "wait_seconds",
			Help:    "Time spent waiting for the cluster in each sync phase.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"phase"}),
		broadcast: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "framelock", Subsystem: "sync", Name: "broadcast_seconds",
			Help:    "Time spent encoding and sending shared state to clients.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		loopTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "framelock", Subsystem: "sync", Name: "loop_time_seconds",
			Help: "Client round trip times for the last acknowledged frame.",
		}, []string{"bound"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framelock", Subsystem: "sync", Name: "failures_total",
			Help: "Sync phases that ended with a timeout or a disconnection.",
		}, []string{"phase", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.waits, m.broadcast, m.loopTime, m.failures)
	}
	return m
}
