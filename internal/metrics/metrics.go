// Package metrics exposes Prometheus collectors for the hub and the room lifecycle.
//
// All methods are safe on a nil *Metrics so components can run without metrics wired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors used across the service.
type Metrics struct {
	// RoomStatusTransitions counts room status changes.
	// Labels: from, to
	RoomStatusTransitions *prometheus.CounterVec

	// Discontinuities counts discontinuity events emitted to features.
	// Labels: feature
	Discontinuities *prometheus.CounterVec

	// PresenceGate counts readiness gate outcomes.
	// Labels: feature, outcome (ok|requires_attach|disallowed|attach_failed|canceled)
	PresenceGate *prometheus.CounterVec

	// HubClients tracks currently registered hub clients.
	HubClients prometheus.Gauge

	// HubChannels tracks channels with at least one attached client.
	HubChannels prometheus.Gauge

	// HubMessages counts messages published through the hub.
	// Labels: kind (message|presence)
	HubMessages *prometheus.CounterVec

	// HubDropped counts frames dropped for slow clients.
	HubDropped prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomStatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_room_status_transitions_total",
				Help: "Total number of room status transitions",
			},
			[]string{"from", "to"},
		),
		Discontinuities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_room_discontinuities_total",
				Help: "Total number of discontinuity events emitted per feature",
			},
			[]string{"feature"},
		),
		PresenceGate: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_presence_gate_total",
				Help: "Outcomes of the presence readiness gate",
			},
			[]string{"feature", "outcome"},
		),
		HubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirechat_hub_clients",
			Help: "Number of clients registered with the hub",
		}),
		HubChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirechat_hub_channels",
			Help: "Number of channels with attached clients",
		}),
		HubMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_hub_messages_total",
				Help: "Total number of messages fanned out by the hub",
			},
			[]string{"kind"},
		),
		HubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirechat_hub_dropped_frames_total",
			Help: "Frames dropped because a client buffer was full",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RoomStatusTransitions,
			m.Discontinuities,
			m.PresenceGate,
			m.HubClients,
			m.HubChannels,
			m.HubMessages,
			m.HubDropped,
		)
	}
	return m
}

// StatusTransition records a room status change.
func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.RoomStatusTransitions.WithLabelValues(from, to).Inc()
}

// Discontinuity records a discontinuity delivered to a feature.
func (m *Metrics) Discontinuity(feature string) {
	if m == nil {
		return
	}
	m.Discontinuities.WithLabelValues(feature).Inc()
}

// Gate records a presence gate outcome.
func (m *Metrics) Gate(feature, outcome string) {
	if m == nil {
		return
	}
	m.PresenceGate.WithLabelValues(feature, outcome).Inc()
}

// ClientRegistered adjusts the hub client gauge.
func (m *Metrics) ClientRegistered(delta int) {
	if m == nil {
		return
	}
	m.HubClients.Add(float64(delta))
}

// SetChannels sets the number of active hub channels.
func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.HubChannels.Set(float64(n))
}

// MessageFanout records a fanned out message of the given kind.
func (m *Metrics) MessageFanout(kind string) {
	if m == nil {
		return
	}
	m.HubMessages.WithLabelValues(kind).Inc()
}

// FrameDropped records a frame dropped for a slow client.
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.HubDropped.Inc()
}
