package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of currently open client connections",
	})

	RegisteredParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_registered_participants",
		Help: "Number of names currently registered in the room",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total routed messages by kind",
	}, []string{"kind"})

	EventProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_event_processing_seconds",
		Help:    "Time to dispatch each message kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_delivery_failures_total",
		Help: "Messages that could not be delivered, by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(RegisteredParticipants)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(DeliveryFailures)
}
