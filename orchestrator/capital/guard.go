// Package capital implements the fail-closed capital precheck consulted by
// the Policy stage: kill switch, UTC-day realized loss cap, and per-account
// and per-strategy notional caps.
package capital

import (
	"context"
	"sync"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/audit"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "capital")

var capsDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kestrel_caps_denied_total",
	Help: "Capital precheck denials by limiting rule.",
}, []string{"reason"})

// Denial reasons, stable strings recorded in audit and decision context.
const (
	DenyKillSwitch   = "kill_switch"
	DenyDailyLossCap = "dailyLossCap"
	DenyAccountCap   = "accountCap"
	DenyStrategyCap  = "strategyCap"
)

// Check is one precheck request.
type Check struct {
	IntentID   string
	StrategyID string
	Account    string
	// Notional in wei.
	Notional float64
}

// Limits is the numeric snapshot of used and cap values at decision time.
type Limits struct {
	AccountUsed  float64 `json:"account_used"`
	AccountCap   float64 `json:"account_cap"`
	StrategyUsed float64 `json:"strategy_used"`
	StrategyCap  float64 `json:"strategy_cap"`
	DayLoss      float64 `json:"day_loss"`
	DailyLossCap float64 `json:"daily_loss_cap"`
}

// Decision is the precheck outcome. Reason is set only on denial.
type Decision struct {
	Allow  bool
	Reason string
	Limits Limits
}

// Guard holds the process-wide capital usage counters. All counter access
// happens under one mutex; the read-modify-compare sequence of a precheck is
// atomic with respect to updates.
type Guard struct {
	ctx    context.Context
	cancel context.CancelFunc

	tuning interface{ Get() *tuning.Snapshot }
	audit  *audit.Logger
	now    func() time.Time

	mu           sync.Mutex
	accountUsed  map[string]float64
	strategyUsed map[string]float64
	lossByDay    map[string]float64
}

// Config for the guard.
type Config struct {
	// Tuning supplies the current caps; required.
	Tuning interface{ Get() *tuning.Snapshot }
	// Audit receives capital_decisions records; optional.
	Audit *audit.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewGuard builds a guard with zeroed counters.
func NewGuard(ctx context.Context, cfg *Config) *Guard {
	ctx, cancel := context.WithCancel(ctx)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Guard{
		ctx:          ctx,
		cancel:       cancel,
		tuning:       cfg.Tuning,
		audit:        cfg.Audit,
		now:          now,
		accountUsed:  make(map[string]float64),
		strategyUsed: make(map[string]float64),
		lossByDay:    make(map[string]float64),
	}
}

// Precheck evaluates the fail-closed rule chain. A denied decision never
// mutates any counter.
func (g *Guard) Precheck(ctx context.Context, check Check) Decision {
	snap := g.tuning.Get().Capital
	day := g.dayKey(g.now())

	g.mu.Lock()
	limits := Limits{
		AccountUsed:  g.accountUsed[check.Account],
		AccountCap:   snap.AccountCap,
		StrategyUsed: g.strategyUsed[check.StrategyID],
		StrategyCap:  snap.StrategyCap,
		DayLoss:      g.lossByDay[day],
		DailyLossCap: snap.DailyLossCap,
	}
	g.mu.Unlock()

	decision := Decision{Allow: true, Limits: limits}
	switch {
	case snap.Kill:
		decision = Decision{Reason: DenyKillSwitch, Limits: limits}
	case limits.DayLoss >= limits.DailyLossCap:
		decision = Decision{Reason: DenyDailyLossCap, Limits: limits}
	case limits.AccountUsed+check.Notional > limits.AccountCap:
		decision = Decision{Reason: DenyAccountCap, Limits: limits}
	case limits.StrategyUsed+check.Notional > limits.StrategyCap:
		decision = Decision{Reason: DenyStrategyCap, Limits: limits}
	}
	if !decision.Allow {
		capsDeniedTotal.WithLabelValues(decision.Reason).Inc()
		log.WithFields(logrus.Fields{
			"intentID": check.IntentID,
			"reason":   decision.Reason,
		}).Info("Capital precheck denied")
	}
	g.record(check, decision)
	return decision
}

// UpdateUsage adds delta to the account and strategy counters, clamping the
// results at zero.
func (g *Guard) UpdateUsage(account, strategy string, delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accountUsed[account] = clampZero(g.accountUsed[account] + delta)
	g.strategyUsed[strategy] = clampZero(g.strategyUsed[strategy] + delta)
}

// UpdateLoss adds delta to today's realized loss, clamped at zero.
func (g *Guard) UpdateLoss(delta float64) {
	day := g.dayKey(g.now())
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lossByDay[day] = clampZero(g.lossByDay[day] + delta)
}

// Usage returns the current counters for an account/strategy pair.
func (g *Guard) Usage(account, strategy string) (accountUsed, strategyUsed float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accountUsed[account], g.strategyUsed[strategy]
}

// DayLoss returns today's realized loss counter.
func (g *Guard) DayLoss() float64 {
	day := g.dayKey(g.now())
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lossByDay[day]
}

// Start implements runtime.Service.
func (g *Guard) Start() {
	log.WithField("kill", g.tuning.Get().Capital.Kill).Info("Capital guard started")
}

// Stop implements runtime.Service.
func (g *Guard) Stop() error {
	g.cancel()
	return nil
}

// Status implements runtime.Service; the guard has no failure modes.
func (g *Guard) Status() error {
	return nil
}

func (g *Guard) record(check Check, d Decision) {
	if g.audit == nil {
		return
	}
	rec := map[string]interface{}{
		"intent_id":      check.IntentID,
		"account":        check.Account,
		"strategy":       check.StrategyID,
		"notional":       check.Notional,
		"allow":          d.Allow,
		"account_used":   d.Limits.AccountUsed,
		"account_cap":    d.Limits.AccountCap,
		"strategy_used":  d.Limits.StrategyUsed,
		"strategy_cap":   d.Limits.StrategyCap,
		"day_loss":       d.Limits.DayLoss,
		"daily_loss_cap": d.Limits.DailyLossCap,
		"ts":             audit.Timestamp(g.now()),
	}
	if !d.Allow {
		rec["reason"] = d.Reason
	}
	if err := g.audit.Append(audit.SubjectCapitalDecisions, rec); err != nil {
		log.WithError(err).Error("Could not audit capital decision")
	}
}

// dayKey is the UTC calendar day of the decision's timestamp.
func (g *Guard) dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
