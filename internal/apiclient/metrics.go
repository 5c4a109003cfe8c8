package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_upstream_requests_total",
		Help: "Calls made to the school API by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_upstream_request_duration_seconds",
		Help:    "Latency of school API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

const (
	outcomeOK            = "ok"
	outcomeTransport     = "transport"
	outcomeHTTPError     = "http_error"
	outcomeUnauthorized  = "unauthorized"
	outcomeNotSuccessful = "not_successful"
	outcomeDecode        = "decode"
)

func observe(endpoint, outcome string, started time.Time) {
	upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	if !started.IsZero() {
		upstreamLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	}
}
