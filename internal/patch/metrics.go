package patch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts manager operations by operation and result
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foraging_patch_operations_total",
		Help: "Total patch manager operations by operation and result",
	}, []string{"operation", "result"})

	// updateDuration tracks the time to compute and swap in one update
	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foraging_patch_update_duration_seconds",
		Help:    "Patch update duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
	})

	// updateRetries counts compare-and-swap losses during Update and Harvest
	updateRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foraging_patch_update_retries_total",
		Help: "Patch state swaps retried because another writer won",
	})

	// rewardDelivered sums the reward amount handed out by Harvest
	rewardDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foraging_patch_reward_delivered_total",
		Help: "Total reward amount delivered by harvests",
	})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
