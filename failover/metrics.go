package failover

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/richinex/querygate/model"
)

// Prometheus metrics
var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_provider_attempts_total",
			Help: "Provider attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	attemptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querygate_provider_latency_seconds",
			Help:    "Latency of provider attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"provider"},
	)
)

var tracer = otel.Tracer("github.com/richinex/querygate/failover")

func init() {
	prometheus.MustRegister(attemptsTotal, attemptLatency)
}

func observeAttempt(a model.ProviderAttempt) {
	attemptsTotal.WithLabelValues(a.ProviderID, a.Outcome.String()).Inc()
	if a.Outcome != model.OutcomeCircuitOpen {
		attemptLatency.WithLabelValues(a.ProviderID).Observe(float64(a.LatencyMs) / 1000)
	}
}

func attemptAttrs(a model.ProviderAttempt) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("querygate.provider", a.ProviderID),
		attribute.String("querygate.outcome", a.Outcome.String()),
		attribute.Int64("querygate.latency_ms", a.LatencyMs),
	}
}
