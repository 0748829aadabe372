package pipeline

import (
	"context"
	"strconv"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/ethereum/go-ethereum/core/types"
)

// ValidateStage proves every enclosed raw transaction decodes and carries a
// recoverable signature. Intents without transactions pass; they declare
// intent without carrying execution payload yet.
type ValidateStage struct{}

// NewValidateStage builds the validate stage.
func NewValidateStage() *ValidateStage {
	return &ValidateStage{}
}

// Name implements Stage.
func (v *ValidateStage) Name() string {
	return "validate"
}

// Target implements Stage.
func (v *ValidateStage) Target() intent.State {
	return intent.Validated
}

// Run implements Stage.
func (v *ValidateStage) Run(_ context.Context, sc *StageContext) *intent.Reason {
	for i, raw := range sc.Intent.Payload.Txs {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return intent.ValidationReason(intent.CodeValidationBadTxEncoding, "transaction does not decode").
				WithContext("tx_index", strconv.Itoa(i))
		}
		signer := types.LatestSignerForChainID(tx.ChainId())
		if _, err := types.Sender(signer, tx); err != nil {
			return intent.ValidationReason(intent.CodeValidationBadSignature, "sender recovery failed").
				WithContext("tx_index", strconv.Itoa(i))
		}
	}
	return nil
}
