package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_deliveries_total",
	Help: "Per-destination event deliveries by transport and outcome",
}, []string{"transport", "outcome"})
