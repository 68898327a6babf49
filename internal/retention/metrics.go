package retention

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slotboard_housekeeping_runs_total",
		Help: "Housekeeping runs by outcome (success, failure, skipped).",
	}, []string{"result"})

	deletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slotboard_housekeeping_deleted_total",
		Help: "Rows removed by housekeeping, by pass.",
	}, []string{"pass"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slotboard_housekeeping_duration_seconds",
		Help:    "Wall time of a housekeeping run.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(runsTotal, deletedTotal, runDuration)
}
