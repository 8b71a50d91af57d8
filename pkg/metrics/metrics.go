// Package metrics exposes relay counters in the prometheus format
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Messages           *prometheus.CounterVec
	RequestTimeouts    prometheus.Counter
	HandshakesRejected *prometheus.CounterVec
	RoomsActive        prometheus.Gauge
	PeersConnected     prometheus.Gauge
	Reconnects         prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages received from peers, by kind.",
		}, []string{"kind"}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_request_timeouts_total",
			Help: "Relayed requests that expired without a response.",
		}),
		HandshakesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handshakes_rejected_total",
			Help: "Websocket handshakes refused before registration, by reason.",
		}, []string{"reason"}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rooms_active",
			Help: "Rooms with a connected host.",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peers_connected",
			Help: "Registered peers, including those inside their reconnect grace.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_reconnects_total",
			Help: "Peers that resumed an existing session on a new transport.",
		}),
	}
	m.registry.MustRegister(
		m.Messages,
		m.RequestTimeouts,
		m.HandshakesRejected,
		m.RoomsActive,
		m.PeersConnected,
		m.Reconnects,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing m
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
