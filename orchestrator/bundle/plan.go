// Package bundle turns validated intents into execution bundle plans: the
// ordered transaction templates plus gas, replacement, and deadline policy
// the relay fan-out executes against.
package bundle

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Template kinds in execution priority order. Unknown kinds order last.
const (
	KindBuy    = "buy"
	KindSell   = "sell"
	KindSettle = "settle"
	KindDecoy  = "decoy"
)

var kindPriority = map[string]int{
	KindBuy:    0,
	KindSell:   1,
	KindSettle: 2,
}

// TxTemplate is one transaction slot in a bundle. Metadata carries
// non-semantic tags (the anti-MEV salt); to/data/value are the semantic
// fields and are never touched after assembly.
type TxTemplate struct {
	Kind     string            `json:"kind"`
	To       common.Address    `json:"to"`
	Data     hexutil.Bytes     `json:"data"`
	Value    *hexutil.Big      `json:"value,omitempty"`
	Atomic   bool              `json:"atomic"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// GasPolicy bounds the fees the fan-out may attach. BumpStep never exceeds
// BumpCap; the assembler clamps it.
type GasPolicy struct {
	BaseFeeMax  uint64 `json:"base_fee_max"`
	PriorityFee uint64 `json:"priority_fee"`
	BumpStep    uint64 `json:"bump_step"`
	BumpCap     uint64 `json:"bump_cap"`
}

// ReplacementPolicy bounds nonce replacement, with the same cap invariant as
// GasPolicy.
type ReplacementPolicy struct {
	Nonce    uint64 `json:"nonce"`
	MaxBumps uint64 `json:"max_bumps"`
	BumpStep uint64 `json:"bump_step"`
	BumpCap  uint64 `json:"bump_cap"`
}

// Plan is the derived bundle artifact. It lives only for the in-flight
// orchestration of one intent and is persisted nowhere but the audit log.
type Plan struct {
	BundleID          string            `json:"bundle_id"`
	IntentID          string            `json:"intent_id"`
	TxTemplates       []TxTemplate      `json:"tx_templates"`
	GasPolicy         GasPolicy         `json:"gas_policy"`
	ReplacementPolicy ReplacementPolicy `json:"replacement_policy"`
	// DeadlineMs is absolute wall-clock ms.
	DeadlineMs int64 `json:"deadline_ms"`
	Atomic     bool  `json:"atomic"`
	// NotBeforeMs is the earliest dispatch time; zero means immediately.
	// Always strictly before DeadlineMs when set.
	NotBeforeMs int64 `json:"not_before_ms,omitempty"`
}

// orderTemplates sorts by kind priority, then kind name for ties. The sort
// is stable so templates of one kind keep their payload order.
func orderTemplates(templates []TxTemplate) {
	sort.SliceStable(templates, func(i, j int) bool {
		pi, iKnown := kindPriority[templates[i].Kind]
		pj, jKnown := kindPriority[templates[j].Kind]
		if !iKnown {
			pi = len(kindPriority)
		}
		if !jKnown {
			pj = len(kindPriority)
		}
		if pi != pj {
			return pi < pj
		}
		return templates[i].Kind < templates[j].Kind
	})
}
