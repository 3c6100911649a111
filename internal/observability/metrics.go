package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	materializedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "careplan",
		Subsystem: "scheduling",
		Name:      "instances_materialized_total",
		Help:      "Number of activity instances created by materialization passes.",
	})

	materializationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "careplan",
		Subsystem: "scheduling",
		Name:      "last_materialization_timestamp_seconds",
		Help:      "Unix timestamp of the most recent materialization pass.",
	})

	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careplan",
		Subsystem: "scheduling",
		Name:      "lifecycle_transitions_total",
		Help:      "Number of successful instance lifecycle transitions, labeled by action.",
	}, []string{"action"})

	invalidatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "careplan",
		Subsystem: "scheduling",
		Name:      "instances_invalidated_total",
		Help:      "Number of pending future instances deleted after template edits.",
	})
)

func init() {
	prometheus.MustRegister(materializedCounter, materializationGauge, transitionCounter, invalidatedCounter)
}

// RecordMaterialization updates the materialization counters after a pass.
func RecordMaterialization(created int) {
	if created > 0 {
		materializedCounter.Add(float64(created))
	}
	materializationGauge.SetToCurrentTime()
}

// RecordTransition counts a successful lifecycle transition.
func RecordTransition(action string) {
	transitionCounter.WithLabelValues(action).Inc()
}

// RecordInvalidation counts instances removed by schedule-edit invalidation.
func RecordInvalidation(removed int) {
	if removed > 0 {
		invalidatedCounter.Add(float64(removed))
	}
}
