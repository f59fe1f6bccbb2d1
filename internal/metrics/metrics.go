package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geofence"

// Reasons used for the events_dropped_total counter.
const (
	DropUnconfigured = "unconfigured"
	DropError        = "error_event"
	DropUnsupported  = "unsupported_kind"
	DropForeign      = "unknown_request_id"
	DropDuplicate    = "duplicate"
	DropStopped      = "stopped"
	DropQueueFull    = "queue_full"
)

// Metrics holds the agent's Prometheus collectors.
type Metrics struct {
	EventsReceived      *prometheus.CounterVec
	EventsDropped       *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	Registrations       *prometheus.CounterVec
	ProcessorState      prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Transition events delivered by the monitor.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Transition events that produced no notification.",
		}, []string{"reason"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Notifications handed to a sink successfully.",
		}, []string{"kind"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notifications a sink failed to accept.",
		}, []string{"kind"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Region registration attempts by result.",
		}, []string{"result"}),
		ProcessorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processor_state",
			Help:      "0 unconfigured, 1 outside the region, 2 inside the region.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsReceived,
			m.EventsDropped,
			m.NotificationsSent,
			m.NotificationsFailed,
			m.Registrations,
			m.ProcessorState,
		)
	}
	return m
}
