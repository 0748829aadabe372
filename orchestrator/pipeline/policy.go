package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/capital"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/ethereum/go-ethereum/core/types"
)

// CapitalGuard is the precheck surface the policy stage consults.
type CapitalGuard interface {
	Precheck(ctx context.Context, check capital.Check) capital.Decision
	UpdateUsage(account, strategy string, delta float64)
}

// PolicyStage is the last gate before QUEUED: fee floor, denylist, and the
// fail-closed capital precheck.
type PolicyStage struct {
	guard CapitalGuard
}

// NewPolicyStage builds the policy stage; guard may be nil, which skips the
// capital precheck (test and dry-run setups).
func NewPolicyStage(guard CapitalGuard) *PolicyStage {
	return &PolicyStage{guard: guard}
}

// Name implements Stage.
func (p *PolicyStage) Name() string {
	return "policy"
}

// Target implements Stage.
func (p *PolicyStage) Target() intent.State {
	return intent.Queued
}

// Run implements Stage.
func (p *PolicyStage) Run(ctx context.Context, sc *StageContext) *intent.Reason {
	cfg := params.KestrelConfig()

	tip := effectiveTip(sc)
	if tip < cfg.MinPriorityFeeWei {
		return intent.PolicyReason(intent.CodePolicyFeeTooLow, "priority fee below the floor").
			WithContext("tip_wei", strconv.FormatUint(tip, 10)).
			WithContext("floor_wei", strconv.FormatUint(cfg.MinPriorityFeeWei, 10))
	}

	if addr, denied := deniedRecipient(cfg.DeniedAddresses, &sc.Intent.Payload); denied {
		return intent.PolicyReason(intent.CodePolicyDenylisted, "recipient is denylisted").
			WithContext("address", addr)
	}

	if p.guard != nil {
		check := capitalCheck(sc)
		decision := p.guard.Precheck(ctx, check)
		if !decision.Allow {
			return intent.PolicyReason(intent.CodePolicyCapitalDenied, "capital precheck denied").
				WithContext("capital_reason", decision.Reason)
		}
		p.guard.UpdateUsage(check.Account, check.StrategyID, check.Notional)
	}
	return nil
}

// effectiveTip prefers the enriched tip over the declared one.
func effectiveTip(sc *StageContext) uint64 {
	if sc.Sim != nil && sc.Sim.TipWei > 0 {
		return sc.Sim.TipWei
	}
	if len(sc.Intent.Payload.Txs) > 0 {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(sc.Intent.Payload.Txs[0]); err == nil {
			return tx.GasTipCap().Uint64()
		}
	}
	return 0
}

func deniedRecipient(denied []string, p *intent.Payload) (string, bool) {
	if len(denied) == 0 {
		return "", false
	}
	for _, raw := range p.Txs {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil || tx.To() == nil {
			continue
		}
		to := strings.ToLower(tx.To().Hex())
		for _, d := range denied {
			if strings.ToLower(d) == to {
				return to, true
			}
		}
	}
	return "", false
}

// capitalCheck derives the precheck request from the intent's meta. Account
// defaults to the intent id when unattributed so caps still bind.
func capitalCheck(sc *StageContext) capital.Check {
	check := capital.Check{
		IntentID: sc.Intent.ID,
		Account:  sc.Intent.ID,
	}
	meta := sc.Intent.Payload.Meta
	if meta != nil {
		if meta.Account != "" {
			check.Account = meta.Account
		}
		check.StrategyID = meta.StrategyKind
		if meta.NotionalWei != "" {
			if notional, err := strconv.ParseFloat(meta.NotionalWei, 64); err == nil && notional > 0 {
				check.Notional = notional
			}
		}
	}
	return check
}
