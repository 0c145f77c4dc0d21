// Package metrics holds the Prometheus collectors for the messenger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bot dispatch outcomes.
const (
	OutcomeFired      = "fired"
	OutcomeQueued     = "queued"
	OutcomeSuppressed = "suppressed"
	OutcomeReleased   = "released"
	OutcomeFailed     = "failed"
)

var (
	BotDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messenger",
			Subsystem: "bots",
			Name:      "dispatch_total",
			Help:      "Bot action dispatch outcomes by handler.",
		},
		[]string{"handler", "outcome"},
	)

	BotHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messenger",
			Subsystem: "bots",
			Name:      "handler_duration_seconds",
			Help:      "Bot handler execution time.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	MessagesStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "messages_stored_total",
			Help:      "Messages persisted by type.",
		},
		[]string{"type"},
	)

	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "broadcasts_total",
			Help:      "Realtime broadcasts sent by event.",
		},
		[]string{"event"},
	)

	PrivateThreadsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "private_threads_created_total",
			Help:      "Private threads created implicitly by the composer.",
		},
	)

	GatewayClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "messenger",
			Subsystem: "gateway",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(BotDispatch)
	prometheus.MustRegister(BotHandlerDuration)
	prometheus.MustRegister(MessagesStored)
	prometheus.MustRegister(Broadcasts)
	prometheus.MustRegister(PrivateThreadsCreated)
	prometheus.MustRegister(GatewayClients)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
