package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/scenecast/internal/protocol"
)

// gathered returns the value of the sample named name whose labels include
// labels, read back through the registry.
func gathered(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

// TestMetricsRecord tests that recorded values reach the registry
func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.FrameReceived(protocol.Transform, 20)
	m.FrameReceived(protocol.Transform, 30)
	m.FrameSent(protocol.ListRooms, 14)
	m.Error("peer_disconnected")
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.SetRooms(3)

	if got := gathered(t, reg, "test_frames_received_total", map[string]string{"type": "TRANSFORM"}); got != 2 {
		t.Errorf("frames received = %v, want 2", got)
	}
	if got := gathered(t, reg, "test_received_bytes_total", nil); got != 50 {
		t.Errorf("bytes received = %v, want 50", got)
	}
	if got := gathered(t, reg, "test_frames_sent_total", map[string]string{"type": "LIST_ROOMS"}); got != 1 {
		t.Errorf("frames sent = %v, want 1", got)
	}
	if got := gathered(t, reg, "test_transport_errors_total", map[string]string{"kind": "peer_disconnected"}); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := gathered(t, reg, "test_active_clients", nil); got != 1 {
		t.Errorf("active clients = %v, want 1", got)
	}
	if got := gathered(t, reg, "test_rooms", nil); got != 3 {
		t.Errorf("rooms = %v, want 3", got)
	}
}

// TestNilMetrics tests that a nil collector set is a no-op
func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.FrameReceived(protocol.Mesh, 1)
	m.FrameSent(protocol.Mesh, 1)
	m.Error("x")
	m.ClientConnected()
	m.ClientDisconnected()
	m.SetRooms(1)
}
