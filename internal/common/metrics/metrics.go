// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	// PipelineMessages counts processed inbound messages by terminal branch
	// (parse_failed, order_ready, order_partial, clarification_needed,
	// informational).
	PipelineMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_total",
			Help: "Inbound messages processed, labeled by pipeline outcome",
		},
		[]string{"tenant", "outcome"},
	)

	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_orders_created_total",
			Help: "Orders created from conversations",
		},
		[]string{"tenant"},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_escalations_total",
			Help: "Low-confidence messages escalated to tenant staff",
		},
		[]string{"tenant"},
	)

	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "pipeline_classifier_duration_seconds",
			Help: "Duration of classifier calls including retries",
		},
	)
)
