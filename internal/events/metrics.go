package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiopolicy_events_subscribers",
			Help: "Number of websocket subscribers to audio events",
		},
	)

	eventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_events_sent_total",
			Help: "Total number of events written to subscribers by type",
		},
		[]string{"type"},
	)

	eventsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiopolicy_events_failed_total",
			Help: "Total number of event writes that failed",
		},
	)
)
