package capital

import (
	"context"
	"testing"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

type staticTuner struct {
	snap *tuning.Snapshot
}

func (s *staticTuner) Get() *tuning.Snapshot {
	return s.snap
}

func newTestGuard(t *testing.T, capital tuning.Capital) (*Guard, *staticTuner) {
	tun := &staticTuner{snap: tuning.DefaultSnapshot()}
	tun.snap.Capital = capital
	g := NewGuard(context.Background(), &Config{
		Tuning: tun,
		Now:    func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() {
		require.NoError(t, g.Stop())
	})
	return g, tun
}

func baseCaps() tuning.Capital {
	return tuning.Capital{
		Kill:         false,
		AccountCap:   1000,
		StrategyCap:  500,
		DailyLossCap: 100,
	}
}

func TestGuard_Precheck_Allow(t *testing.T) {
	g, _ := newTestGuard(t, baseCaps())
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 400})
	assert.Equal(t, true, d.Allow)
	assert.Equal(t, "", d.Reason)
	assert.Equal(t, float64(1000), d.Limits.AccountCap)
}

func TestGuard_Precheck_KillSwitch(t *testing.T) {
	caps := baseCaps()
	caps.Kill = true
	g, _ := newTestGuard(t, caps)
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 1})
	assert.Equal(t, false, d.Allow)
	assert.Equal(t, DenyKillSwitch, d.Reason)
}

func TestGuard_Precheck_DailyLossCap(t *testing.T) {
	g, _ := newTestGuard(t, baseCaps())
	g.UpdateLoss(100)
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 1})
	assert.Equal(t, false, d.Allow)
	assert.Equal(t, DenyDailyLossCap, d.Reason)
}

func TestGuard_Precheck_ZeroLossCapWithPriorLoss(t *testing.T) {
	caps := baseCaps()
	caps.DailyLossCap = 0
	g, _ := newTestGuard(t, caps)
	g.UpdateLoss(1)
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 1})
	assert.Equal(t, false, d.Allow)
	assert.Equal(t, DenyDailyLossCap, d.Reason)
}

func TestGuard_Precheck_AccountCap(t *testing.T) {
	g, _ := newTestGuard(t, baseCaps())
	g.UpdateUsage("acct", "other-strat", 700)
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 301})
	assert.Equal(t, false, d.Allow)
	assert.Equal(t, DenyAccountCap, d.Reason)
	assert.Equal(t, float64(700), d.Limits.AccountUsed)
}

func TestGuard_Precheck_StrategyCap(t *testing.T) {
	g, _ := newTestGuard(t, baseCaps())
	g.UpdateUsage("other-acct", "strat", 400)
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 101})
	assert.Equal(t, false, d.Allow)
	assert.Equal(t, DenyStrategyCap, d.Reason)
}

func TestGuard_Precheck_DenialDoesNotMutate(t *testing.T) {
	caps := baseCaps()
	caps.Kill = true
	g, _ := newTestGuard(t, caps)

	before, _ := g.Usage("acct", "strat")
	lossBefore := g.DayLoss()
	_ = g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 50})
	after, _ := g.Usage("acct", "strat")
	assert.Equal(t, before, after)
	assert.Equal(t, lossBefore, g.DayLoss())
}

func TestGuard_Updates_ClampToZero(t *testing.T) {
	g, _ := newTestGuard(t, baseCaps())
	g.UpdateUsage("acct", "strat", 100)
	g.UpdateUsage("acct", "strat", -250)
	acct, strat := g.Usage("acct", "strat")
	assert.Equal(t, float64(0), acct)
	assert.Equal(t, float64(0), strat)

	g.UpdateLoss(-10)
	assert.Equal(t, float64(0), g.DayLoss())
}

func TestGuard_HotTuningTakesEffect(t *testing.T) {
	g, tun := newTestGuard(t, baseCaps())
	d := g.Precheck(context.Background(), Check{IntentID: "i1", Account: "acct", StrategyID: "strat", Notional: 1})
	assert.Equal(t, true, d.Allow)

	// The guard pulls the snapshot at the top of every call.
	next := tun.snap.Copy()
	next.Capital.Kill = true
	tun.snap = next

	d = g.Precheck(context.Background(), Check{IntentID: "i2", Account: "acct", StrategyID: "strat", Notional: 1})
	assert.Equal(t, false, d.Allow)
	assert.Equal(t, DenyKillSwitch, d.Reason)
}
