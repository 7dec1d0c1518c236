// Package metrics exposes the prometheus counters/histograms SPEC_FULL.md's
// ambient stack calls for: plan/task terminal counts and config poll
// latency. Kept as package-level vars registered once, the shape most
// client_golang-instrumented services in the pack use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PlansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula_meta",
		Name:      "plans_total",
		Help:      "Balance plans reaching a terminal state, by status.",
	}, []string{"status"})

	TasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula_meta",
		Name:      "tasks_total",
		Help:      "Balance tasks reaching a terminal state, by status.",
	}, []string{"status"})

	ConfigPollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nebula_meta",
		Name:      "config_poll_duration_seconds",
		Help:      "Duration of a config manager list() poll tick.",
		Buckets:   prometheus.DefBuckets,
	})

	ConfigPollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nebula_meta",
		Name:      "config_poll_failures_total",
		Help:      "Config manager poll ticks that failed to contact the config store.",
	})
)

// Register adds every collector in this package to reg. Call once at
// process startup; tests that don't care about metrics can skip it.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(PlansTotal, TasksTotal, ConfigPollDuration, ConfigPollFailuresTotal)
}
