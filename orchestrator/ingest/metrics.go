package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var intentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kestrel_intents_total",
	Help: "Submission boundary decisions.",
}, []string{"decision"})
