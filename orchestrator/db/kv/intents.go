package kv

import (
	"context"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ErrNotFound is returned when no intent row exists for the requested id.
var ErrNotFound = errors.New("intent not found")

// Intent returns the row for id, or nil when absent.
func (s *Store) Intent(ctx context.Context, id string) (*intent.Intent, error) {
	_, span := trace.StartSpan(ctx, "intentDB.Intent")
	defer span.End()

	var row *intent.Intent
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(intentsBucket).Get([]byte(id))
		if enc == nil {
			return nil
		}
		row = &intent.Intent{}
		return decode(enc, row)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// HasIntent reports whether a row for id exists.
func (s *Store) HasIntent(ctx context.Context, id string) (bool, error) {
	_, span := trace.StartSpan(ctx, "intentDB.HasIntent")
	defer span.End()

	var exists bool
	err := s.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket(intentsBucket).Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

// IntentIDsByState scans for intents currently in the given state. Used by
// the sweep loops that recover RECEIVED and QUEUED intents after a restart.
func (s *Store) IntentIDsByState(ctx context.Context, st intent.State) ([]string, error) {
	_, span := trace.StartSpan(ctx, "intentDB.IntentIDsByState")
	defer span.End()

	var ids []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(intentsBucket).ForEach(func(k, v []byte) error {
			var row intent.Intent
			if err := decode(v, &row); err != nil {
				return err
			}
			if row.State == st {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

// SeenRequestHash reports whether a request hash was ever accepted and, if
// so, by which intent.
func (s *Store) SeenRequestHash(ctx context.Context, requestHash string) (string, bool, error) {
	_, span := trace.StartSpan(ctx, "intentDB.SeenRequestHash")
	defer span.End()

	var id string
	err := s.view(func(tx *bolt.Tx) error {
		if v := tx.Bucket(requestHashesBucket).Get([]byte(requestHash)); v != nil {
			id = string(v)
		}
		return nil
	})
	return id, id != "", err
}

// CreateIntent inserts a new row in RECEIVED at version zero. The row, its
// initial event, the last-event pointer, and the request-hash index entry
// are all written in one transaction.
func (s *Store) CreateIntent(ctx context.Context, id string, payload intent.Payload, requestHash, corrID string) (*intent.Intent, error) {
	_, span := trace.StartSpan(ctx, "intentDB.CreateIntent")
	defer span.End()

	now := time.Now().UnixMilli()
	row := &intent.Intent{
		ID:            id,
		State:         intent.Received,
		Version:       0,
		RequestHash:   requestHash,
		CorrelationID: corrID,
		Payload:       payload,
		ReceivedAt:    now,
	}
	err := s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(intentsBucket)
		if bkt.Get([]byte(id)) != nil {
			return intent.ClientReason(intent.CodeClientDuplicateIntentID, "intent id already exists").WithContext("intent_id", id)
		}
		ev := &intent.Event{
			IntentID:    id,
			FromState:   nil,
			ToState:     intent.Received,
			CorrID:      corrID,
			RequestHash: requestHash,
			Ts:          now,
		}
		if err := appendEventTx(tx, ev); err != nil {
			return err
		}
		enc, err := encode(row)
		if err != nil {
			return err
		}
		if err := bkt.Put([]byte(id), enc); err != nil {
			return err
		}
		hashes := tx.Bucket(requestHashesBucket)
		if hashes.Get([]byte(requestHash)) == nil {
			if err := hashes.Put([]byte(requestHash), []byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// AdvanceIntent performs the compare-and-swap advance. The event row is
// written before the intent row inside the same transaction, so a failed
// transaction can never produce a moved row without its event.
func (s *Store) AdvanceIntent(ctx context.Context, id string, expectedVersion uint64, to intent.State, reason *intent.Reason, corrID string) (*intent.Intent, error) {
	_, span := trace.StartSpan(ctx, "intentDB.AdvanceIntent")
	defer span.End()

	var row *intent.Intent
	err := s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(intentsBucket)
		enc := bkt.Get([]byte(id))
		if enc == nil {
			return ErrNotFound
		}
		row = &intent.Intent{}
		if err := decode(enc, row); err != nil {
			return err
		}
		if row.Version != expectedVersion {
			return ErrVersionConflict
		}
		from := row.State
		ev := &intent.Event{
			IntentID:    id,
			FromState:   intent.StatePtr(from),
			ToState:     to,
			CorrID:      corrID,
			RequestHash: row.RequestHash,
			Ts:          time.Now().UnixMilli(),
		}
		if reason != nil {
			ev.ReasonCode = reason.Code
			ev.ReasonCategory = reason.Category
			ev.ReasonMessage = reason.Message
			ev.Context = reason.Context
		}
		if err := appendEventTx(tx, ev); err != nil {
			return err
		}
		row.State = to
		row.Version = expectedVersion + 1
		if intent.Terminal(to) && reason != nil {
			row.LastReason = reason
		}
		updated, err := encode(row)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), updated)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}
