package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeRejected     = "rejected"
	outcomeBackendError = "backend_error"
	outcomePersisted    = "persisted"
	outcomeUnpersisted  = "unpersisted"
	outcomeError        = "error"
)

var (
	chatTurnsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Chat turns handled, by outcome.",
	}, []string{"outcome"})
	modelLatencyMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_model_request_duration_seconds",
		Help:    "Latency of generate calls to the model backend.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	dependencyUpMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_dependency_up",
		Help: "Result of the last health probe per dependency (1 healthy, 0 otherwise).",
	}, []string{"dependency"})
)

func setDependencyUp(dependency string, up bool) {
	value := 0.0
	if up {
		value = 1
	}
	dependencyUpMetric.WithLabelValues(dependency).Set(value)
}
