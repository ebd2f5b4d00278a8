package audiochannel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiopolicy_channel_windows",
			Help: "Number of windows known to the channel registry",
		},
	)

	childrenGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiopolicy_channel_children",
			Help: "Number of child processes reporting channel activity",
		},
	)

	activeAgentsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiopolicy_channel_active_agents",
			Help: "Number of registered agents per channel kind",
		},
		[]string{"kind"},
	)

	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_channel_registrations_total",
			Help: "Total number of agent registrations per channel kind",
		},
		[]string{"kind"},
	)

	permissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopolicy_channel_permission_checks_total",
			Help: "Total number of channel permission checks by outcome",
		},
		[]string{"kind", "decision"},
	)

	statusBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiopolicy_channel_status_broadcasts_total",
			Help: "Total number of coalesced status broadcasts delivered",
		},
	)
)
