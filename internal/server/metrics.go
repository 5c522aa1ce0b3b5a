// Package server exports Prometheus metrics describing socket, session, and
// event throughput state.
package server

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "chat"

const eventLabelName = "event"

var (
	metricConnectedSockets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_sockets",
			Help:      "number of open WebSocket connections, joined or not",
		})

	metricOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "online_users",
			Help:      "number of live sessions in the registry",
		})

	metricInboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_events_total",
			Help:      "client frames accepted, by event name",
		}, []string{eventLabelName})

	metricOutboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbound_events_total",
			Help:      "events queued for delivery, by event name",
		}, []string{eventLabelName})

	metricDroppedDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_deliveries_total",
			Help:      "per-recipient deliveries abandoned because the send queue was full or closed",
		})
)

// RegisterMetrics registers all server metrics with r. It should be called
// exactly once, before the HTTP surface starts serving.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(metricConnectedSockets)
	r.MustRegister(metricOnlineUsers)
	r.MustRegister(metricInboundEvents)
	r.MustRegister(metricOutboundEvents)
	r.MustRegister(metricDroppedDeliveries)
}
