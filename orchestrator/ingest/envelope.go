package ingest

import (
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
)

// EnvelopeReason is the reason block of the canonical error envelope.
type EnvelopeReason struct {
	Code       string            `json:"code"`
	Category   string            `json:"category"`
	HTTPStatus int               `json:"http_status"`
	Message    string            `json:"message,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// Envelope is the canonical error shape returned to clients. Every failure
// carries the correlation id so operators can join it to logs and events.
type Envelope struct {
	CorrID      string         `json:"corr_id"`
	RequestHash string         `json:"request_hash,omitempty"`
	State       string         `json:"state"`
	Reason      EnvelopeReason `json:"reason"`
	Ts          string         `json:"ts"`
}

// NewEnvelope builds the envelope for a rejection.
func NewEnvelope(corrID, requestHash, state string, r *intent.Reason) *Envelope {
	return &Envelope{
		CorrID:      corrID,
		RequestHash: requestHash,
		State:       state,
		Reason: EnvelopeReason{
			Code:       r.Code,
			Category:   r.Category,
			HTTPStatus: r.HTTPStatus(),
			Message:    r.Message,
			Context:    r.Context,
		},
		Ts: time.Now().UTC().Format(time.RFC3339),
	}
}
