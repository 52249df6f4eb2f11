package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	fixesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "herdguard",
			Name:      "fixes_received_total",
			Help:      "Location fixes accepted by the ingest gate.",
		},
		[]string{"result"},
	)

	alertsRaised = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "herdguard",
			Name:      "alerts_raised_total",
			Help:      "Out-of-zone alerts raised.",
		},
	)

	alertsCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "herdguard",
			Name:      "alerts_cleared_total",
			Help:      "Alerts cleared after the hold elapsed.",
		},
	)

	linksDeactivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "herdguard",
			Name:      "links_deactivated_total",
			Help:      "Device links marked inactive by the staleness sweep.",
		},
	)

	linkSyncErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "herdguard",
			Name:      "link_sync_errors_total",
			Help:      "Per-link failures during fix fan-out.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		fixesReceived,
		alertsRaised,
		alertsCleared,
		linksDeactivated,
		linkSyncErrors,
	)
}
