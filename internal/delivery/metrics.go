package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHTTPSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_http_sends_total",
		Help: "Request/response deliveries by outcome",
	}, []string{"outcome"})

	metricStreamDials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_stream_dials_total",
		Help: "Persistent-stream connection attempts by outcome",
	}, []string{"outcome"})

	metricStreamEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_stream_evictions_total",
		Help: "Persistent-stream connections removed from the pool",
	})

	metricRetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_retry_attempts_total",
		Help: "Attempts made under the retry policy",
	})

	gaugePoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "delivery_stream_pool_size",
		Help: "Open persistent-stream connections",
	})
)
