package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slotboard_ws_connections",
		Help: "Currently attached websocket connections.",
	})

	wsRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slotboard_ws_rooms",
		Help: "Rooms with at least one subscriber.",
	})

	// event label is bounded by the protocol's event names.
	wsBroadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slotboard_ws_broadcasts_total",
		Help: "Broadcast fan-outs by event.",
	}, []string{"event"})

	wsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slotboard_ws_frames_delivered_total",
		Help: "Frames accepted into a connection's send buffer.",
	})

	wsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slotboard_ws_dropped_total",
		Help: "Frames dropped because the peer was closed or its buffer was full.",
	})

	wsSlowConsumers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slotboard_ws_slow_consumers_total",
		Help: "Connections closed because their send buffer overflowed.",
	})

	// InboundEvents counts client frames by event and outcome; the websocket
	// handler increments it.
	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slotboard_ws_inbound_events_total",
		Help: "Client events by event name and result code.",
	}, []string{"event", "result"})
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsBroadcasts, wsDelivered, wsDropped, wsSlowConsumers, InboundEvents)
}
