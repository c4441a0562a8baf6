package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the backend's Prometheus instruments.
type Metrics struct {
	MessagesConsumed  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
	DecodeErrors      prometheus.Counter
	ScoreSubmissions  *prometheus.CounterVec
	BroadcastsSent    *prometheus.CounterVec
	ConnectionState   prometheus.Gauge
}

// New registers all instruments on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marathon",
			Name:      "messages_consumed_total",
			Help:      "Inbound bus messages drained by the processing loop.",
		}, []string{"topic"}),
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marathon",
			Name:      "messages_published_total",
			Help:      "Messages published to the bus.",
		}, []string{"topic"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marathon",
			Name:      "decode_errors_total",
			Help:      "Malformed payloads dropped without a response.",
		}),
		ScoreSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marathon",
			Name:      "score_submissions_total",
			Help:      "Score submissions by outcome.",
		}, []string{"result"}),
		BroadcastsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marathon",
			Name:      "broadcasts_sent_total",
			Help:      "Periodic broadcasts by kind.",
		}, []string{"kind"}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marathon",
			Name:      "broker_connected",
			Help:      "1 while the broker session is connected, 0 otherwise.",
		}),
	}
}
