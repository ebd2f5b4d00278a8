package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var loopTasksDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "audiopolicy_loop_tasks_dropped_total",
		Help: "Total number of tasks rejected because the coordinating loop queue was full",
	},
)
