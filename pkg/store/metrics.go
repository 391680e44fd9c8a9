package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillsync_store_rows_written_total",
		Help: "Rows written by table and operation.",
	}, []string{"table", "op"})

	batchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skillsync_store_batch_seconds",
		Help:    "Latency of store batch commits.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	diskBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillsync_store_disk_bytes",
		Help: "Bytes used on disk by the store, refreshed by maintenance.",
	})
)

func init() {
	prometheus.MustRegister(rowsWritten, batchSeconds, diskBytes)
}

func observeWrite(table, op string, d time.Duration) {
	rowsWritten.WithLabelValues(table, op).Inc()
	batchSeconds.Observe(d.Seconds())
}

// RefreshDiskGauge updates the disk usage gauge and returns the value.
func (s *Store) RefreshDiskGauge() uint64 {
	n := s.db.DiskUsage()
	diskBytes.Set(float64(n))
	return n
}
