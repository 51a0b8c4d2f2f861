package mindwell

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mindwell_realtime_connected",
		Help: "Whether the realtime session is currently connected (1) or not (0).",
	})

	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindwell_realtime_reconnects_total",
		Help: "Number of reconnect attempts scheduled after a dropped connection.",
	})

	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_realtime_events_total",
		Help: "Inbound realtime events received, by event name.",
	}, []string{"event"})

	metricMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindwell_messages_sent_total",
		Help: "Messages successfully sent and confirmed by the server.",
	})

	metricSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindwell_message_send_failures_total",
		Help: "Message sends rejected by the server or failed in transport.",
	})
)
