// Package metrics exposes Prometheus instrumentation for the broadcaster.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/luciancaetano/scenecast/internal/protocol"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "scenecast"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	bytesReceived  prometheus.Counter
	bytesSent      prometheus.Counter
	errors         *prometheus.CounterVec
	activeClients  prometheus.Gauge
	rooms          prometheus.Gauge
}

// New registers the collectors with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received, by message type",
		}, []string{"type"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames sent, by message type",
		}, []string{"type"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Frame bytes received, headers included",
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Frame bytes sent, headers included",
		}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transport errors, by kind",
		}, []string{"kind"}),

		activeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_clients",
			Help:      "Connected clients",
		}),

		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Open rooms",
		}),
	}
}

// FrameReceived records one inbound frame of size bytes.
func (m *Metrics) FrameReceived(t protocol.MessageType, size int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(t.String()).Inc()
	m.bytesReceived.Add(float64(size))
}

// FrameSent records one outbound frame of size bytes.
func (m *Metrics) FrameSent(t protocol.MessageType, size int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(t.String()).Inc()
	m.bytesSent.Add(float64(size))
}

// Error records a transport error of the given kind.
func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// ClientConnected increments the client gauge.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.activeClients.Inc()
}

// ClientDisconnected decrements the client gauge.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.activeClients.Dec()
}

// SetRooms sets the open room gauge.
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}
