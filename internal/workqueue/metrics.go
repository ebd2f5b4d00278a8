package workqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_workqueue_submitted_total",
			Help: "Total number of items accepted by a work queue",
		},
		[]string{"queue"},
	)

	queueRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_workqueue_rejected_total",
			Help: "Total number of items rejected because a work queue was full or stopped",
		},
		[]string{"queue"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiopolicy_workqueue_depth",
			Help: "Current number of items waiting in a work queue",
		},
		[]string{"queue"},
	)
)
