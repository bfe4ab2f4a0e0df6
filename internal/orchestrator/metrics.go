package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_state_transitions_total",
		Help: "Bot status transitions",
	}, []string{"from", "to"})

	metricFatal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_fatal_total",
		Help: "Launches that ended fatally, by subCode",
	}, []string{"subcode"})

	metricLaunchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orch_launch_duration_seconds",
		Help:    "Time from launch to captions flowing",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	metricLeaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_leave_failures_total",
		Help: "Shutdowns where the leave flow failed",
	})

	metricStatusDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_status_events_dropped_total",
		Help: "Status events dropped because the delivery queue was full",
	})
)
