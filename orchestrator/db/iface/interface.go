// Package iface defines the contract for the intent database. It exists as
// its own package to avoid circular dependencies between consumers of the
// database and the bolt implementation.
package iface

import (
	"context"
	"io"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
)

// ReadOnlyDatabase exposes the read surface of the intent store.
type ReadOnlyDatabase interface {
	// Intent returns the row for id, or nil when absent.
	Intent(ctx context.Context, id string) (*intent.Intent, error)
	// HasIntent reports whether a row for id exists.
	HasIntent(ctx context.Context, id string) (bool, error)
	// IntentEvents returns the append-only event stream for id in
	// (ts, insertion) order.
	IntentEvents(ctx context.Context, id string) ([]*intent.Event, error)
	// LastEvent returns the materialized latest event for id, or nil.
	LastEvent(ctx context.Context, id string) (*intent.Event, error)
	// IntentIDsByState scans for intents currently in the given state.
	IntentIDsByState(ctx context.Context, st intent.State) ([]string, error)
	// SeenRequestHash reports whether a request hash was ever accepted and,
	// if so, by which intent.
	SeenRequestHash(ctx context.Context, requestHash string) (string, bool, error)
	// SimSummary returns the enrichment outputs for an intent, or nil when
	// the intent never reached the enrich stage.
	SimSummary(ctx context.Context, id string) (*bundle.SimOutputs, error)
	// SubmissionRecord returns the bundle id and lane acknowledgements for an
	// intent, or nil when it was never submitted.
	SubmissionRecord(ctx context.Context, id string) (*intent.SubmissionRecord, error)
}

// Database is the full intent store contract.
type Database interface {
	ReadOnlyDatabase

	// CreateIntent inserts a new row in RECEIVED at version zero together
	// with its initial event, atomically. Fails with a
	// CLIENT_DUPLICATE_INTENT_ID reason if the id exists.
	CreateIntent(ctx context.Context, id string, payload intent.Payload, requestHash, corrID string) (*intent.Intent, error)
	// AdvanceIntent performs the compare-and-swap advance: the event row and
	// the updated intent row are written in one transaction, or neither is.
	// Returns ErrVersionConflict when expectedVersion is stale.
	AdvanceIntent(ctx context.Context, id string, expectedVersion uint64, to intent.State, reason *intent.Reason, corrID string) (*intent.Intent, error)

	// SaveSimSummary stores the enrichment outputs for an intent.
	SaveSimSummary(ctx context.Context, id string, sim *bundle.SimOutputs) error
	// SaveSubmissionRecord stores the bundle id and lane acknowledgements.
	SaveSubmissionRecord(ctx context.Context, id string, rec *intent.SubmissionRecord) error

	// ImportEventsJSONL loads fixture event rows, skipping malformed lines
	// and rows already present keyed by (intent_id, ts). Returns the number
	// of rows imported.
	ImportEventsJSONL(ctx context.Context, r io.Reader) (int, error)
	// ExportEventsJSONL writes the event stream for an intent as JSONL.
	ExportEventsJSONL(ctx context.Context, w io.Writer, intentID string) error

	// Backup copies the database file into the datadir backup directory.
	Backup(ctx context.Context) error

	DatabasePath() string
	ClearDB() error
	Close() error
}
