package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "kestrel_stage_latency_seconds",
	Help:    "Wall time spent in each pipeline stage.",
	Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.25, 1, 2.5, 10},
}, []string{"stage"})
