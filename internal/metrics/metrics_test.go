package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusTransitions(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StatusTransition("initialized", "attaching")
	m.StatusTransition("attaching", "attached")
	m.StatusTransition("attaching", "attached")

	expected := `
		# HELP wirechat_room_status_transitions_total Total number of room status transitions
		# TYPE wirechat_room_status_transitions_total counter
		wirechat_room_status_transitions_total{from="attaching",to="attached"} 2
		wirechat_room_status_transitions_total{from="initialized",to="attaching"} 1
	`
	if err := testutil.CollectAndCompare(m.RoomStatusTransitions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestGateAndHubCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Gate("presence", "ok")
	m.Gate("typing", "requires_attach")
	m.Discontinuity("messages")
	m.ClientRegistered(2)
	m.ClientRegistered(-1)
	m.SetChannels(3)
	m.MessageFanout("message")
	m.FrameDropped()

	if count := testutil.CollectAndCount(m.PresenceGate); count != 2 {
		t.Errorf("expected 2 gate label combinations, got %d", count)
	}
	if v := testutil.ToFloat64(m.Discontinuities.WithLabelValues("messages")); v != 1 {
		t.Errorf("discontinuities = %v", v)
	}
	if v := testutil.ToFloat64(m.HubClients); v != 1 {
		t.Errorf("hub clients = %v", v)
	}
	if v := testutil.ToFloat64(m.HubChannels); v != 3 {
		t.Errorf("hub channels = %v", v)
	}
	if v := testutil.ToFloat64(m.HubDropped); v != 1 {
		t.Errorf("dropped = %v", v)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.StatusTransition("a", "b")
	m.Discontinuity("messages")
	m.Gate("presence", "ok")
	m.ClientRegistered(1)
	m.SetChannels(1)
	m.MessageFanout("message")
	m.FrameDropped()
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Gate("presence", "ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "wirechat_presence_gate_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("presence gate metric not registered")
	}
}
