package relay

import (
	"math"
	"sort"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
)

// Routing strategies.
const (
	StrategyParallelPreferAuth   = "parallel-prefer-auth"
	StrategySequentialPreferAuth = "sequential-prefer-auth"
)

// RelayPlan is the ordered set of lanes to try for one bundle, with the
// per-attempt backoff and jitter series.
type RelayPlan struct {
	Targets  []string `json:"targets"`
	Strategy string   `json:"strategy"`
	// BackoffMs is non-decreasing and capped at the router's maxMs.
	BackoffMs []int64 `json:"backoff_ms"`
	JitterMs  []int64 `json:"jitter_ms"`
}

// Route orders lanes for a bundle plan: authenticated-healthy first, then
// unauthenticated-healthy, and degraded lanes only as a last resort. rnd
// supplies the jitter randomness and is injected for deterministic tests.
func Route(plan *bundle.Plan, lanes []LaneHealth, tun tuning.Router, rnd func() float64) *RelayPlan {
	var authHealthy, unauthHealthy, degraded []LaneHealth
	for _, lh := range lanes {
		switch {
		case lh.Healthy && lh.Authenticated:
			authHealthy = append(authHealthy, lh)
		case lh.Healthy:
			unauthHealthy = append(unauthHealthy, lh)
		default:
			degraded = append(degraded, lh)
		}
	}
	byScoreThenRtt := func(s []LaneHealth) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].Score != s[j].Score {
				return s[i].Score > s[j].Score
			}
			return s[i].RttMs < s[j].RttMs
		})
	}
	byScoreThenRtt(authHealthy)
	byScoreThenRtt(unauthHealthy)

	ordered := append(authHealthy, unauthHealthy...)
	if len(ordered) == 0 {
		sort.SliceStable(degraded, func(i, j int) bool { return degraded[i].Score > degraded[j].Score })
		ordered = degraded
	}

	targets := make([]string, len(ordered))
	for i, lh := range ordered {
		targets[i] = lh.ID
	}

	attempts := len(targets)
	if attempts < 1 {
		attempts = 1
	}
	jitterPct := tun.JitterPct
	if jitterPct < 0 {
		jitterPct = 0
	}
	if jitterPct > 100 {
		jitterPct = 100
	}
	factor := tun.Factor
	if factor < 1 {
		// A sub-unit factor would make the series decreasing.
		factor = 1
	}
	backoff := make([]int64, attempts)
	jitter := make([]int64, attempts)
	for i := 0; i < attempts; i++ {
		b := int64(math.Floor(float64(tun.BaseMs) * math.Pow(factor, float64(i))))
		if b > tun.MaxMs {
			b = tun.MaxMs
		}
		backoff[i] = b
		jitter[i] = int64(math.Floor(float64(b) * rnd() * float64(jitterPct) / 100))
	}

	strategy := StrategySequentialPreferAuth
	if plan.Atomic {
		strategy = StrategyParallelPreferAuth
	}
	return &RelayPlan{
		Targets:   targets,
		Strategy:  strategy,
		BackoffMs: backoff,
		JitterMs:  jitter,
	}
}
