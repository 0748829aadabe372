// Package predictor estimates a bundle's inclusion probability and expected
// inclusion latency from the plan itself and the current lane health. It is
// a pure heuristic: no network calls, no state.
package predictor

import (
	"math"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/relay"
)

// Logistic model coefficients, fit offline against historical submissions.
const (
	a0      = 0.35
	aInc    = 0.9
	aTip    = 0.12
	aSize   = -0.02
	aTime   = 0.25
	aAtomic = -0.1
	eps     = 0.05
)

// Defaults used when no healthy lane has been observed yet.
const (
	defaultIncRate = 0.5
	defaultRttMs   = 120.0
)

// Estimate is the predictor output for one plan.
type Estimate struct {
	// PInclusion is the inclusion probability in [0.001, 0.999].
	PInclusion float64 `json:"p_inclusion"`
	// PLatencyMs is the expected ms until inclusion, at least 50 and never
	// past the plan deadline.
	PLatencyMs float64 `json:"p_latency_ms"`
}

// Predict scores the plan against current lane health.
func Predict(plan *bundle.Plan, lanes []relay.LaneHealth, nowMs int64) Estimate {
	meanIncRate, meanRtt := laneMeans(lanes)

	tipGwei := float64(plan.GasPolicy.PriorityFee) / 1e9
	size := float64(len(plan.TxTemplates))
	timeToDeadlineSec := float64(plan.DeadlineMs-nowMs) / 1000
	if timeToDeadlineSec < 0 {
		timeToDeadlineSec = 0
	}
	atomic := 0.0
	if plan.Atomic {
		atomic = 1.0
	}

	x := a0 +
		aInc*math.Log(math.Max(eps, meanIncRate)) +
		aTip*math.Log(1+tipGwei) +
		aSize*size +
		aTime*(timeToDeadlineSec/30) +
		aAtomic*atomic

	latencyCeil := float64(plan.DeadlineMs - nowMs)
	if latencyCeil < 0 {
		latencyCeil = 0
	}
	return Estimate{
		PInclusion: clamp(sigmoid(x), 0.001, 0.999),
		PLatencyMs: clamp(meanRtt+size*25, 50, latencyCeil),
	}
}

// laneMeans averages inclusion rate and rtt over healthy lanes only,
// falling back to the package defaults when none are healthy.
func laneMeans(lanes []relay.LaneHealth) (incRate, rttMs float64) {
	var sumInc, sumRtt float64
	var n int
	for _, lh := range lanes {
		if !lh.Healthy {
			continue
		}
		sumInc += lh.IncRate
		sumRtt += lh.RttMs
		n++
	}
	if n == 0 {
		return defaultIncRate, defaultRttMs
	}
	return sumInc / float64(n), sumRtt / float64(n)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// clamp bounds v to [lo, hi]; the upper bound wins when the window is
// inverted, so a near-expired deadline caps the estimate below the floor.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
