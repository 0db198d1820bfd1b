package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmgate_requests_total",
		Help: "Chat requests by provider, model and HTTP status.",
	}, []string{"provider", "model", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llmgate_request_duration_seconds",
		Help:    "End-to-end chat call latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider", "stream"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmgate_tokens_total",
		Help: "Tokens accounted per provider, model and direction.",
	}, []string{"provider", "model", "direction"})

	costTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmgate_cost_usd_total",
		Help: "Accumulated cost in USD per provider and model.",
	}, []string{"provider", "model"})
)

func observeCall(provider, model, status string, stream bool, latencyS float64) {
	requestsTotal.WithLabelValues(provider, model, status).Inc()
	streamLabel := "false"
	if stream {
		streamLabel = "true"
	}
	requestDuration.WithLabelValues(provider, streamLabel).Observe(latencyS)
}

func observeUsage(provider, model string, in, out int, cost float64) {
	tokensTotal.WithLabelValues(provider, model, "input").Add(float64(in))
	tokensTotal.WithLabelValues(provider, model, "output").Add(float64(out))
	costTotal.WithLabelValues(provider, model).Add(cost)
}
