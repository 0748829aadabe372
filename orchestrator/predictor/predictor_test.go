package predictor

import (
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/relay"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

func planFixture(nowMs int64) *bundle.Plan {
	return &bundle.Plan{
		BundleID: "b-1",
		IntentID: "i-1",
		TxTemplates: []bundle.TxTemplate{
			{Kind: bundle.KindBuy},
			{Kind: bundle.KindSell},
		},
		GasPolicy:  bundle.GasPolicy{PriorityFee: 2_000_000_000},
		DeadlineMs: nowMs + 30_000,
	}
}

func TestPredict_DefaultsWithoutHealthyLanes(t *testing.T) {
	nowMs := int64(1_700_000_000_000)
	plan := planFixture(nowMs)

	est := Predict(plan, nil, nowMs)
	require.Equal(t, true, est.PInclusion > 0.001)
	require.Equal(t, true, est.PInclusion < 0.999)
	// mean rtt defaults to 120ms, plus 25ms per template.
	assert.Equal(t, 170.0, est.PLatencyMs)

	unhealthyOnly := []relay.LaneHealth{{ID: "a", Healthy: false, IncRate: 0.9, RttMs: 10}}
	assert.DeepEqual(t, est, Predict(plan, unhealthyOnly, nowMs))
}

func TestPredict_HealthierLanesScoreHigher(t *testing.T) {
	nowMs := int64(1_700_000_000_000)
	plan := planFixture(nowMs)

	weak := Predict(plan, []relay.LaneHealth{{ID: "a", Healthy: true, IncRate: 0.1, RttMs: 100}}, nowMs)
	strong := Predict(plan, []relay.LaneHealth{{ID: "a", Healthy: true, IncRate: 0.9, RttMs: 100}}, nowMs)
	require.Equal(t, true, strong.PInclusion > weak.PInclusion)
}

func TestPredict_HigherTipScoresHigher(t *testing.T) {
	nowMs := int64(1_700_000_000_000)
	lanes := []relay.LaneHealth{{ID: "a", Healthy: true, IncRate: 0.5, RttMs: 100}}

	low := planFixture(nowMs)
	low.GasPolicy.PriorityFee = 1_000_000_000
	high := planFixture(nowMs)
	high.GasPolicy.PriorityFee = 50_000_000_000

	require.Equal(t, true, Predict(high, lanes, nowMs).PInclusion > Predict(low, lanes, nowMs).PInclusion)
}

func TestPredict_AtomicPenalty(t *testing.T) {
	nowMs := int64(1_700_000_000_000)
	lanes := []relay.LaneHealth{{ID: "a", Healthy: true, IncRate: 0.5, RttMs: 100}}

	plain := planFixture(nowMs)
	atomic := planFixture(nowMs)
	atomic.Atomic = true
	require.Equal(t, true, Predict(plain, lanes, nowMs).PInclusion > Predict(atomic, lanes, nowMs).PInclusion)
}

func TestPredict_LatencyBounds(t *testing.T) {
	nowMs := int64(1_700_000_000_000)
	lanes := []relay.LaneHealth{{ID: "a", Healthy: true, IncRate: 0.5, RttMs: 5}}

	// Floor: tiny rtt and a single template still reports at least 50ms.
	small := planFixture(nowMs)
	small.TxTemplates = small.TxTemplates[:1]
	assert.Equal(t, 50.0, Predict(small, lanes, nowMs).PLatencyMs)

	// Ceiling: a nearly-expired deadline caps the estimate.
	tight := planFixture(nowMs)
	tight.DeadlineMs = nowMs + 40
	slow := []relay.LaneHealth{{ID: "a", Healthy: true, IncRate: 0.5, RttMs: 500}}
	assert.Equal(t, 40.0, Predict(tight, slow, nowMs).PLatencyMs)
}

func TestPredict_MeanOverHealthyLanesOnly(t *testing.T) {
	nowMs := int64(1_700_000_000_000)
	plan := planFixture(nowMs)
	lanes := []relay.LaneHealth{
		{ID: "a", Healthy: true, IncRate: 0.4, RttMs: 100},
		{ID: "b", Healthy: true, IncRate: 0.6, RttMs: 200},
		{ID: "c", Healthy: false, IncRate: 0.0, RttMs: 9000},
	}
	// mean rtt 150 plus 25ms per template.
	assert.Equal(t, 200.0, Predict(plan, lanes, nowMs).PLatencyMs)
}
