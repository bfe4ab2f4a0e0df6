package launcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDeploys = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launcher_deploys_total",
		Help: "Deployment attempts by outcome",
	}, []string{"outcome"})

	metricExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launcher_instance_exits_total",
		Help: "Bot instance exits by clean/failed",
	}, []string{"result"})

	gaugeLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "launcher_live_instances",
		Help: "Bot instances starting or running",
	})
)
