package antimev

import (
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/config/features"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func testPlan(nowMs int64) *bundle.Plan {
	return &bundle.Plan{
		BundleID: "b-1",
		IntentID: "intent-1",
		TxTemplates: []bundle.TxTemplate{
			{Kind: bundle.KindBuy, To: common.HexToAddress("0x11"), Data: hexutil.Bytes{0x01}, Atomic: true},
			{Kind: bundle.KindSell, To: common.HexToAddress("0x22"), Data: hexutil.Bytes{0x02}, Atomic: true},
		},
		DeadlineMs: nowMs + 30000,
		Atomic:     true,
	}
}

func testTuning() tuning.AntiMEV {
	return tuning.AntiMEV{JitterMaxMs: 150, EpochMs: 2000, DecoyPct: 0}
}

func TestMitigate_SemanticFieldsUntouched(t *testing.T) {
	nowMs := int64(1700000000000)
	plan := testPlan(nowMs)
	out := Mitigate(plan, Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, testTuning())

	require.Equal(t, len(plan.TxTemplates), len(out.TxTemplates))
	for i := range plan.TxTemplates {
		assert.Equal(t, plan.TxTemplates[i].To, out.TxTemplates[i].To)
		assert.DeepEqual(t, plan.TxTemplates[i].Data, out.TxTemplates[i].Data)
		assert.Equal(t, plan.TxTemplates[i].Value, out.TxTemplates[i].Value)
	}
	// The input plan is left untouched.
	for _, tpl := range plan.TxTemplates {
		if tpl.Metadata != nil {
			t.Fatal("Mitigate must not mutate its input")
		}
	}
}

func TestMitigate_SaltStableWithinEpoch(t *testing.T) {
	nowMs := int64(1700000000000)
	tun := testTuning()
	opts := Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}

	a := Mitigate(testPlan(nowMs), opts, tun)
	// Same epoch bucket: 1999ms later with a 2000ms epoch.
	opts2 := opts
	opts2.NowMs = nowMs + 1999 - (nowMs % 2000)
	b := Mitigate(testPlan(nowMs), opts2, tun)

	saltA := a.TxTemplates[0].Metadata[SaltMetadataKey]
	saltB := b.TxTemplates[0].Metadata[SaltMetadataKey]
	assert.Equal(t, 32, len(saltA), "Salt is 128 bits hex encoded")
	assert.Equal(t, saltA, saltB)
	for _, tpl := range a.TxTemplates {
		assert.Equal(t, saltA, tpl.Metadata[SaltMetadataKey])
	}
}

func TestMitigate_SaltVariesAcrossEpochs(t *testing.T) {
	a := Salt("intent-1", "corr-1", 100)
	b := Salt("intent-1", "corr-1", 101)
	assert.NotEqual(t, a, b)
}

func TestMitigate_SaltVariesByIntent(t *testing.T) {
	a := Salt("intent-1", "corr-1", 100)
	b := Salt("intent-2", "corr-1", 100)
	assert.NotEqual(t, a, b)
}

func TestMitigate_NotBeforeBounds(t *testing.T) {
	nowMs := int64(1700000000000)
	tun := testTuning()
	out := Mitigate(testPlan(nowMs), Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, tun)

	if out.NotBeforeMs < nowMs {
		t.Errorf("notBefore %d moved earlier than now %d", out.NotBeforeMs, nowMs)
	}
	if out.NotBeforeMs >= out.DeadlineMs {
		t.Errorf("notBefore %d not strictly before deadline %d", out.NotBeforeMs, out.DeadlineMs)
	}
	if out.NotBeforeMs > nowMs+tun.JitterMaxMs {
		t.Errorf("notBefore %d exceeds now+jitterMax", out.NotBeforeMs)
	}
}

func TestMitigate_ZeroJitter(t *testing.T) {
	nowMs := int64(1700000000000)
	tun := testTuning()
	tun.JitterMaxMs = 0
	out := Mitigate(testPlan(nowMs), Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, tun)
	assert.Equal(t, nowMs, out.NotBeforeMs)
}

func TestMitigate_TightDeadline(t *testing.T) {
	nowMs := int64(1700000000000)
	plan := testPlan(nowMs)
	plan.DeadlineMs = nowMs + 1
	tun := testTuning()
	tun.JitterMaxMs = 10000
	out := Mitigate(plan, Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, tun)
	assert.Equal(t, nowMs, out.NotBeforeMs, "notBefore clamps strictly below the deadline")
}

func TestMitigate_DecoysDisabledByDefault(t *testing.T) {
	nowMs := int64(1700000000000)
	tun := testTuning()
	tun.DecoyPct = 1
	out := Mitigate(testPlan(nowMs), Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, tun)
	assert.Equal(t, 2, len(out.TxTemplates), "Decoys are feature gated off by default")
}

func TestMitigate_Decoys(t *testing.T) {
	resetCfg := features.InitWithReset(&features.Flags{EnableDecoys: true})
	defer resetCfg()

	nowMs := int64(1700000000000)
	tun := testTuning()
	tun.DecoyPct = 1
	out := Mitigate(testPlan(nowMs), Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, tun)

	require.Equal(t, 4, len(out.TxTemplates))
	salt := out.TxTemplates[0].Metadata[SaltMetadataKey]
	for _, tpl := range out.TxTemplates[2:] {
		assert.Equal(t, bundle.KindDecoy, tpl.Kind)
		assert.Equal(t, salt, tpl.Metadata[SaltMetadataKey])
	}
}

func TestMitigate_DecoyCountCapped(t *testing.T) {
	resetCfg := features.InitWithReset(&features.Flags{EnableDecoys: true})
	defer resetCfg()

	nowMs := int64(1700000000000)
	plan := testPlan(nowMs)
	plan.TxTemplates = append(plan.TxTemplates, bundle.TxTemplate{Kind: bundle.KindSettle, Atomic: true},
		bundle.TxTemplate{Kind: bundle.KindSettle, Atomic: true})
	tun := testTuning()
	tun.DecoyPct = 1
	out := Mitigate(plan, Opts{IntentID: "intent-1", CorrID: "corr-1", NowMs: nowMs}, tun)
	assert.Equal(t, 6, len(out.TxTemplates), "At most two decoys are appended")
}
