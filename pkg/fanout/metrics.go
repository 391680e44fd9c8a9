package fanout

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillsync_fanout_sessions",
		Help: "Connected live-sync sessions.",
	})
	liveQueries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillsync_fanout_live_queries",
		Help: "Distinct live queries with at least one subscriber.",
	})
	subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillsync_fanout_subscriptions",
		Help: "Active subscriptions across all sessions.",
	})
	pushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skillsync_fanout_pushes_total",
		Help: "Update frames queued to sessions.",
	})
	droppedSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skillsync_fanout_dropped_sessions_total",
		Help: "Sessions closed because their outbound buffer was full.",
	})
	unchangedSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skillsync_fanout_unchanged_total",
		Help: "Recomputations whose result matched the last push.",
	})
	recomputeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skillsync_fanout_recompute_errors_total",
		Help: "Live query recomputations that failed.",
	})
)

func init() {
	prometheus.MustRegister(activeSessions, liveQueries, subscriptions, pushes, droppedSessions, unchangedSkips, recomputeErrors)
}
