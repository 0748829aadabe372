package intent

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Intent is the primary entity, one row per accepted client submission.
// Rows are never deleted; terminal rows remain for audit.
type Intent struct {
	ID            string  `json:"intent_id"`
	State         State   `json:"state"`
	Version       uint64  `json:"version"`
	RequestHash   string  `json:"request_hash"`
	CorrelationID string  `json:"correlation_id"`
	Payload       Payload `json:"payload"`
	ReceivedAt    int64   `json:"received_at"`
	LastReason    *Reason `json:"last_reason,omitempty"`
}

// Payload is the client-supplied structured body. The set of recognized
// top-level keys is closed; the submission boundary rejects others.
type Payload struct {
	TargetChain      string          `json:"target_chain"`
	TargetBlock      *int64          `json:"target_block,omitempty"`
	DeadlineMs       int64           `json:"deadline_ms"`
	MaxCalldataBytes int             `json:"max_calldata_bytes,omitempty"`
	Constraints      *Constraints    `json:"constraints,omitempty"`
	Txs              []hexutil.Bytes `json:"txs,omitempty"`
	Meta             *Meta           `json:"meta,omitempty"`
}

// Constraints are optional execution guards supplied by the client.
type Constraints struct {
	MinNetWei      string `json:"min_net_wei,omitempty"`
	MaxStalenessMs int64  `json:"max_staleness_ms,omitempty"`
	RevertShield   bool   `json:"revert_shield,omitempty"`
}

// Meta carries strategy attribution used by the capital guard. Account and
// notional default to the values of the authenticated principal when unset.
type Meta struct {
	StrategyKind string `json:"strategy_kind,omitempty"`
	Account      string `json:"account,omitempty"`
	NotionalWei  string `json:"notional_wei,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Event is one append-only audit row. FromState is nil only for the initial
// RECEIVED insert. Rows are never updated or deleted.
type Event struct {
	IntentID       string            `json:"intent_id"`
	FromState      *State            `json:"from_state"`
	ToState        State             `json:"to_state"`
	ReasonCode     string            `json:"reason_code,omitempty"`
	ReasonCategory string            `json:"reason_category,omitempty"`
	ReasonMessage  string            `json:"reason_message,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	CorrID         string            `json:"corr_id,omitempty"`
	RequestHash    string            `json:"request_hash,omitempty"`
	Ts             int64             `json:"ts"`
}

// LaneSubmission is one relay lane acknowledgement.
type LaneSubmission struct {
	Lane       string `json:"lane"`
	BundleHash string `json:"bundle_hash,omitempty"`
	Ts         int64  `json:"ts"`
}

// SubmissionRecord ties an intent to the bundle built for it and the lane
// acknowledgements received. Surfaced by the status endpoint.
type SubmissionRecord struct {
	BundleID    string           `json:"bundle_id"`
	Submissions []LaneSubmission `json:"submissions,omitempty"`
}

// StatePtr is a convenience for building events with a non-nil from state.
func StatePtr(s State) *State {
	return &s
}
