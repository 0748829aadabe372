// Package feed defines the typed lifecycle events passed between the
// orchestrator's services over event feeds: submission acceptance, queue
// handoff, and persisted state transitions.
package feed

import (
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
)

// EventType discriminates the data carried by an Event.
type EventType int

const (
	// IntentAccepted is sent by the submission boundary after a unique
	// (intent_id, request_hash) pair is persisted in RECEIVED.
	IntentAccepted EventType = iota + 1
	// IntentQueued is sent by the pipeline once an intent clears the Policy
	// stage and is ready for bundle assembly.
	IntentQueued
	// StateTransition is sent by the transition executor after every
	// successful compare-and-swap advance.
	StateTransition
)

// Event is the envelope sent over lifecycle feeds.
type Event struct {
	Type EventType
	Data interface{}
}

// IntentAcceptedData is the data sent with IntentAccepted events.
type IntentAcceptedData struct {
	IntentID      string
	CorrelationID string
	RequestHash   string
}

// IntentQueuedData is the data sent with IntentQueued events.
type IntentQueuedData struct {
	IntentID      string
	CorrelationID string
}

// StateTransitionData is the data sent with StateTransition events.
// FromState is nil only for the initial RECEIVED insert.
type StateTransitionData struct {
	IntentID      string
	FromState     *intent.State
	ToState       intent.State
	CorrelationID string
	Reason        *intent.Reason
}
