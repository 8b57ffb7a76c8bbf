package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for BatchResultRequestsTotal.
const (
	OutcomeOK              = "ok"
	OutcomeNotFound        = "not_found"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

var (
	// API service
	BatchStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_started_total",
			Help: "Total number of batches persisted",
		},
		[]string{"type"},
	)

	BatchChildrenCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_children_created_total",
			Help: "Total number of child jobs persisted",
		},
		[]string{"type"},
	)

	BatchSignalPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_signal_publish_failures_total",
			Help: "Execution signals that could not be published after commit",
		},
		[]string{"type"},
	)

	BatchResultRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_result_requests_total",
			Help: "Total number of batch result reads",
		},
		[]string{"type", "outcome"},
	)

	// Worker service
	WorkerJobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Child jobs driven to a terminal status by workers",
		},
		[]string{"type", "status"},
	)

	// Buckets: 50ms to ~100s
	WorkerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Child job execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"type"},
	)

	WorkerSignalsRepublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_signals_republished_total",
			Help: "Execution signals republished for stale PENDING children",
		},
	)

	WorkerStaleRunningFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_stale_running_failed_total",
			Help: "RUNNING children failed by the reconciler after timing out",
		},
	)
)
