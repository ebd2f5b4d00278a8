package offload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_offload_sessions_created_total",
			Help: "Total number of hardware offload sessions created",
		},
		[]string{"media"},
	)

	sessionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_offload_session_failures_total",
			Help: "Total number of hardware offload session failures by phase",
		},
		[]string{"phase"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_offload_fallbacks_total",
			Help: "Total number of fallbacks to software decoding by reason",
		},
		[]string{"reason"},
	)

	offloadActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiopolicy_offload_active_sessions",
			Help: "Number of playbacks currently offloaded to hardware",
		},
	)

	staleEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiopolicy_offload_stale_events_total",
			Help: "Total number of hardware events discarded after a session reset",
		},
	)

	seekOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_offload_seeks_total",
			Help: "Total number of resolved seeks by outcome",
		},
		[]string{"status"},
	)

	framesAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiopolicy_offload_frames_analyzed_total",
			Help: "Total number of video frames analyzed",
		},
	)
)
