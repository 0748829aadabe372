package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relaySubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_relay_submissions_total",
		Help: "Lane submission attempts by lane id and outcome.",
	}, []string{"lane", "outcome"})
	laneProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_lane_probes_total",
		Help: "Lane health probes by lane id and outcome.",
	}, []string{"lane", "outcome"})
)
