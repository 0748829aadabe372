package intent

// successors declares the full transition relation. Every pre-QUEUED state
// can fail to REJECTED (stage rejection) or DROPPED (internal error,
// shutdown); QUEUED drops when submission exhausts all lanes or the deadline
// passes. Terminal states map to an empty successor set and must stay that
// way.
var successors = map[State][]State{
	Received:  {Screened, Rejected, Dropped},
	Screened:  {Validated, Rejected, Dropped},
	Validated: {Enriched, Rejected, Dropped},
	Enriched:  {Queued, Rejected, Dropped},
	Queued:    {Submitted, Dropped},
	Submitted: {Included, Dropped},
	Included:  {},
	Dropped:   {},
	Rejected:  {},
}

// Can reports whether an intent in state from is allowed to move to state to.
// Pure lookup, no I/O.
func Can(from, to State) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func Terminal(s State) bool {
	return len(successors[s]) == 0
}
