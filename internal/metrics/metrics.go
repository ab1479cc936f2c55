// Package metrics provides Prometheus metrics for monitoring the control loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_tasks_scheduled_total",
			Help: "Total number of tasks promoted to the scheduled state",
		},
		[]string{"type", "priority"},
	)
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_tasks_completed_total",
			Help: "Total number of tasks completed successfully",
		},
		[]string{"type"},
	)
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_tasks_failed_total",
			Help: "Total number of task runs that failed",
		},
		[]string{"type"},
	)
	TasksRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_tasks_retried_total",
			Help: "Total number of task retries",
		},
		[]string{"type"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type", "status"},
	)
	RulesTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_healing_rules_triggered_total",
			Help: "Total number of healing rule triggers",
		},
		[]string{"rule"},
	)
	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_healing_sessions_total",
			Help: "Total number of completed healing sessions by outcome",
		},
		[]string{"status"},
	)
	ProbeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aegis_health_probe_status",
			Help: "Latest probe status (0 unknown, 1 healthy, 2 warning, 3 critical)",
		},
		[]string{"probe"},
	)
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_alerts_raised_total",
			Help: "Total number of alerts raised",
		},
		[]string{"level", "source"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskScheduled(taskType, priority string) {
	TasksScheduled.WithLabelValues(taskType, priority).Inc()
}

func RecordTaskCompleted(taskType string, duration time.Duration) {
	TasksCompleted.WithLabelValues(taskType).Inc()
	TaskDuration.WithLabelValues(taskType, "completed").Observe(duration.Seconds())
}

func RecordTaskFailed(taskType string, duration time.Duration) {
	TasksFailed.WithLabelValues(taskType).Inc()
	TaskDuration.WithLabelValues(taskType, "failed").Observe(duration.Seconds())
}

func RecordTaskRetried(taskType string) {
	TasksRetried.WithLabelValues(taskType).Inc()
}

func RecordRuleTriggered(ruleID string) {
	RulesTriggered.WithLabelValues(ruleID).Inc()
}

func RecordSessionCompleted(status string) {
	SessionsCompleted.WithLabelValues(status).Inc()
}

func RecordProbeStatus(probe string, severity int) {
	ProbeStatus.WithLabelValues(probe).Set(float64(severity))
}

func RecordAlertRaised(level, source string) {
	AlertsRaised.WithLabelValues(level, source).Inc()
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
