// Package intent defines the intent lifecycle: the state set, the allowed
// transition relation, structured rejection reasons, and the persisted
// record shapes shared by the store, the pipeline, and the audit trail.
package intent

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// State is one step of the intent lifecycle. The zero value is Received,
// the state every intent is created in.
type State uint8

const (
	// Received means the submission boundary accepted the intent.
	Received State = iota
	// Screened means syntactic sanity checks passed.
	Screened
	// Validated means enclosed raw transactions are cryptographically well formed.
	Validated
	// Enriched means provider context (nonce, fee hints) has been resolved.
	Enriched
	// Queued means the intent awaits bundle assembly and submission.
	Queued
	// Submitted means at least one relay acknowledged the bundle.
	Submitted
	// Included is terminal: the bundle landed on chain.
	Included
	// Dropped is terminal: the bundle was given up on after submission or fan-out failure.
	Dropped
	// Rejected is terminal: a pipeline stage refused the intent.
	Rejected
)

var stateNames = map[State]string{
	Received:  "RECEIVED",
	Screened:  "SCREENED",
	Validated: "VALIDATED",
	Enriched:  "ENRICHED",
	Queued:    "QUEUED",
	Submitted: "SUBMITTED",
	Included:  "INCLUDED",
	Dropped:   "DROPPED",
	Rejected:  "REJECTED",
}

var statesByName = func() map[string]State {
	m := make(map[string]State, len(stateNames))
	for s, n := range stateNames {
		m[n] = s
	}
	return m
}()

// String returns the wire name of the state, e.g. "RECEIVED".
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// StateFromString parses a wire name back into a State.
func StateFromString(name string) (State, error) {
	s, ok := statesByName[name]
	if !ok {
		return 0, errors.Errorf("unknown intent state %q", name)
	}
	return s, nil
}

// MarshalJSON encodes the state as its wire name.
func (s State) MarshalJSON() ([]byte, error) {
	n, ok := stateNames[s]
	if !ok {
		return nil, errors.Errorf("cannot marshal unknown intent state %d", s)
	}
	return json.Marshal(n)
}

// UnmarshalJSON decodes a wire name into the state.
func (s *State) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	parsed, err := StateFromString(n)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ValidStates returns every state the store may persist, in lifecycle order.
func ValidStates() []State {
	return []State{Received, Screened, Validated, Enriched, Queued, Submitted, Included, Dropped, Rejected}
}
