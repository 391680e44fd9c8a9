package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "skillsync_operation_duration_seconds",
	Help:    "Duration of tracked operations.",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"op"})

func init() {
	prometheus.MustRegister(opDuration)
}

func observe(op string, d time.Duration) {
	opDuration.WithLabelValues(op).Observe(d.Seconds())
}
