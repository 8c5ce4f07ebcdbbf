// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WSConnectionsActive tracks active websocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active websocket connections",
		},
	)

	// RoomsActive tracks rooms with at least one connected socket.
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_rooms_active",
			Help: "Number of rooms with at least one connection",
		},
	)

	// BroadcastsTotal tracks events fanned out to rooms.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Total events broadcast to rooms",
		},
		[]string{"type"},
	)

	// DroppedClientsTotal tracks connections evicted for not keeping up.
	DroppedClientsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_dropped_clients_total",
			Help: "Connections evicted because their send buffer filled",
		},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"kind"},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"kind"},
	)

	// MessagePagesTotal tracks backward history pages served.
	MessagePagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_pages_total",
			Help: "Backward pagination pages served",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementWSConnections increments the active websocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active websocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
