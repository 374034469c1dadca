package taskqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_enqueued_total",
			Help: "Tasks submitted to queues",
		},
		[]string{"kind"},
	)

	tasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_completed_total",
			Help: "Tasks that finished successfully",
		},
		[]string{"kind"},
	)

	tasksRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_retried_total",
			Help: "Task attempts that failed and were rescheduled",
		},
		[]string{"kind"},
	)

	tasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_failed_total",
			Help: "Tasks that exhausted their attempt budget",
		},
		[]string{"kind"},
	)
)
