package ipc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	childConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiopolicy_ipc_child_connections",
			Help: "Number of child processes connected to the status channel",
		},
	)

	messagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_ipc_messages_received_total",
			Help: "Total number of frames received from children by type",
		},
		[]string{"type"},
	)

	aggregateWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiopolicy_ipc_aggregate_write_failures_total",
			Help: "Total number of aggregate pushes that failed",
		},
	)
)
