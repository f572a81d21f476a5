// Package metrics exposes the core's Prometheus collectors. Hosts that run
// an HTTP surface register promhttp themselves; the core only increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RuleEvaluations counts rule evaluations by outcome
	// (fired, not_triggered, skipped, error).
	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopcore_rule_evaluations_total",
		Help: "Total rule evaluations by outcome",
	}, []string{"outcome"})

	// RuleFirings counts successful firings per trigger kind.
	RuleFirings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopcore_rule_firings_total",
		Help: "Total successful rule firings",
	}, []string{"trigger"})

	// ActionDispatches counts action handler invocations by kind and
	// disposition (applied, noop, failed).
	ActionDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopcore_action_dispatches_total",
		Help: "Total action dispatches by kind and disposition",
	}, []string{"action", "disposition"})

	// ScheduleComputations counts CPM runs by result (ok, error).
	ScheduleComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopcore_schedule_computations_total",
		Help: "Total critical-path schedule computations",
	}, []string{"result"})

	// ScheduleDuration tracks CPM computation time.
	ScheduleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopcore_schedule_duration_seconds",
		Help:    "Duration of critical-path schedule computations",
		Buckets: prometheus.DefBuckets,
	})

	// CycleRejections counts dependency edges refused at the write boundary.
	CycleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopcore_cycle_rejections_total",
		Help: "Dependency edges rejected because they would create a cycle",
	})
)
