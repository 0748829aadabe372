package bundle

import (
	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SimOutputs carries the enrichment and simulation context the assembler
// folds into the plan: the sender's next nonce and the fee picture.
type SimOutputs struct {
	NonceHint      uint64 `json:"nonce_hint"`
	TipWei         uint64 `json:"tip_wei"`
	BaseFeeWei     uint64 `json:"base_fee_wei"`
	GrossProfitWei uint64 `json:"gross_profit_wei,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
}

// Assemble builds the bundle plan for a validated intent. Pure function of
// its inputs and the process configuration; no I/O.
func Assemble(it *intent.Intent, sim *SimOutputs, nowMs int64) (*Plan, error) {
	cfg := params.KestrelConfig()

	templates, err := templatesFromPayload(&it.Payload)
	if err != nil {
		return nil, err
	}
	orderTemplates(templates)

	deadline := nowMs + int64(cfg.BundleDeadlineSecs)*1000
	if it.Payload.DeadlineMs > 0 && it.Payload.DeadlineMs < deadline {
		deadline = it.Payload.DeadlineMs
	}

	bumpStep := cfg.GasBumpStepWei
	if bumpStep > cfg.GasBumpCapWei {
		bumpStep = cfg.GasBumpCapWei
	}
	priorityFee := cfg.PriorityFeeWei
	if sim != nil && sim.TipWei > priorityFee {
		priorityFee = sim.TipWei
	}
	var nonce uint64
	if sim != nil {
		nonce = sim.NonceHint
	}

	plan := &Plan{
		BundleID:    uuid.NewString(),
		IntentID:    it.ID,
		TxTemplates: templates,
		GasPolicy: GasPolicy{
			BaseFeeMax:  cfg.BaseFeeMaxWei,
			PriorityFee: priorityFee,
			BumpStep:    bumpStep,
			BumpCap:     cfg.GasBumpCapWei,
		},
		ReplacementPolicy: ReplacementPolicy{
			Nonce:    nonce,
			MaxBumps: cfg.ReplacementMaxBumps,
			BumpStep: bumpStep,
			BumpCap:  cfg.GasBumpCapWei,
		},
		DeadlineMs: deadline,
		Atomic:     true,
	}
	for i := range plan.TxTemplates {
		plan.TxTemplates[i].Atomic = plan.Atomic
	}
	return plan, nil
}

// templatesFromPayload decodes each enclosed raw transaction into a
// template. Kinds follow the declared strategy: an arbitrage intent's first
// two transactions are its buy and sell legs; everything else settles.
func templatesFromPayload(p *intent.Payload) ([]TxTemplate, error) {
	templates := make([]TxTemplate, 0, len(p.Txs))
	strategyKind := ""
	if p.Meta != nil {
		strategyKind = p.Meta.StrategyKind
	}
	for i, raw := range p.Txs {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, errors.Wrapf(err, "could not decode payload tx %d", i)
		}
		if tx.To() == nil {
			return nil, errors.Errorf("payload tx %d is a contract creation, not routable", i)
		}
		templates = append(templates, TxTemplate{
			Kind:  kindForTx(strategyKind, i, len(p.Txs)),
			To:    *tx.To(),
			Data:  hexutil.Bytes(tx.Data()),
			Value: (*hexutil.Big)(tx.Value()),
		})
	}
	return templates, nil
}

func kindForTx(strategyKind string, i, n int) string {
	if strategyKind == "arb" && n >= 2 {
		switch i {
		case 0:
			return KindBuy
		case 1:
			return KindSell
		}
	}
	return KindSettle
}
