package kv

import (
	"context"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// SaveSimSummary stores the enrichment outputs for an intent, keyed by id.
// Re-enrichment overwrites; the summary is a projection, not an audit row.
func (s *Store) SaveSimSummary(ctx context.Context, id string, sim *bundle.SimOutputs) error {
	_, span := trace.StartSpan(ctx, "intentDB.SaveSimSummary")
	defer span.End()

	enc, err := encode(sim)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(simSummariesBucket).Put([]byte(id), enc)
	})
}

// SimSummary returns the enrichment outputs for an intent, or nil when the
// intent never reached the enrich stage.
func (s *Store) SimSummary(ctx context.Context, id string) (*bundle.SimOutputs, error) {
	_, span := trace.StartSpan(ctx, "intentDB.SimSummary")
	defer span.End()

	var sim *bundle.SimOutputs
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(simSummariesBucket).Get([]byte(id))
		if enc == nil {
			return nil
		}
		sim = &bundle.SimOutputs{}
		return decode(enc, sim)
	})
	if err != nil {
		return nil, err
	}
	return sim, nil
}

// SaveSubmissionRecord stores the bundle id and lane acknowledgements for an
// intent.
func (s *Store) SaveSubmissionRecord(ctx context.Context, id string, rec *intent.SubmissionRecord) error {
	_, span := trace.StartSpan(ctx, "intentDB.SaveSubmissionRecord")
	defer span.End()

	enc, err := encode(rec)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(submissionsBucket).Put([]byte(id), enc)
	})
}

// SubmissionRecord returns the submission record for an intent, or nil when
// it was never submitted.
func (s *Store) SubmissionRecord(ctx context.Context, id string) (*intent.SubmissionRecord, error) {
	_, span := trace.StartSpan(ctx, "intentDB.SubmissionRecord")
	defer span.End()

	var rec *intent.SubmissionRecord
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(submissionsBucket).Get([]byte(id))
		if enc == nil {
			return nil
		}
		rec = &intent.SubmissionRecord{}
		return decode(enc, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
