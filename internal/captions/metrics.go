package captions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captionbot_captions_finalized_total",
		Help: "Caption lines finalized and dispatched",
	})
	metricRevised = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captionbot_captions_revised_total",
		Help: "Finalized caption items that changed on the surface afterwards",
	})
	metricPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captionbot_caption_poll_errors_total",
		Help: "Caption surface reads that failed",
	})
)
