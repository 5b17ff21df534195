package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pearlyx_backend_requests_total",
		Help: "Calls to the analysis service by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pearlyx_backend_latency_seconds",
		Help:    "Latency of calls to the analysis service",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pearlyx_uploads_total",
		Help: "Upload submissions by audio origin and outcome",
	}, []string{"origin", "outcome"})

	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pearlyx_chat_messages_total",
		Help: "Chat transcript entries by author",
	}, []string{"author"})

	DroppedResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pearlyx_dropped_responses_total",
		Help: "Service responses discarded because their view was gone",
	}, []string{"view"})
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeAPIError  = "api_error"
	OutcomeTransport = "transport_error"
)
