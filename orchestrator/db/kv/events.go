package kv

import (
	"bytes"
	"context"

	"github.com/dchisholm125/kestrel-hq-sub001/encoding/bytesutil"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// eventKeySep separates the intent id from the (ts, seq) suffix so a prefix
// cursor scan yields exactly one intent's events in order.
const eventKeySep = byte(0x00)

func eventKeyPrefix(intentID string) []byte {
	return append([]byte(intentID), eventKeySep)
}

func eventKey(intentID string, ts int64, seq uint64) []byte {
	key := eventKeyPrefix(intentID)
	key = append(key, bytesutil.Uint64ToBytesBigEndian(uint64(ts))...)
	return append(key, bytesutil.Uint64ToBytesBigEndian(seq)...)
}

// appendEventTx writes one event row and moves the last-event pointer, all
// inside the caller's transaction. The bucket sequence provides the
// insertion-order tiebreak for same-millisecond events.
func appendEventTx(tx *bolt.Tx, ev *intent.Event) error {
	bkt := tx.Bucket(intentEventsBucket)
	seq, err := bkt.NextSequence()
	if err != nil {
		return err
	}
	key := eventKey(ev.IntentID, ev.Ts, seq)
	enc, err := encode(ev)
	if err != nil {
		return err
	}
	if err := bkt.Put(key, enc); err != nil {
		return err
	}
	return tx.Bucket(lastEventBucket).Put([]byte(ev.IntentID), key)
}

// IntentEvents returns the append-only event stream for id in (ts,
// insertion) order.
func (s *Store) IntentEvents(ctx context.Context, id string) ([]*intent.Event, error) {
	_, span := trace.StartSpan(ctx, "intentDB.IntentEvents")
	defer span.End()

	var events []*intent.Event
	err := s.view(func(tx *bolt.Tx) error {
		prefix := eventKeyPrefix(id)
		c := tx.Bucket(intentEventsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ev := &intent.Event{}
			if err := decode(v, ev); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// LastEvent returns the latest event for id via the materialized pointer,
// or nil when the intent has no events. The pointer is moved in the same
// transaction as every append, so it is never stale.
func (s *Store) LastEvent(ctx context.Context, id string) (*intent.Event, error) {
	_, span := trace.StartSpan(ctx, "intentDB.LastEvent")
	defer span.End()

	var ev *intent.Event
	err := s.view(func(tx *bolt.Tx) error {
		key := tx.Bucket(lastEventBucket).Get([]byte(id))
		if key == nil {
			return nil
		}
		enc := tx.Bucket(intentEventsBucket).Get(key)
		if enc == nil {
			return nil
		}
		ev = &intent.Event{}
		return decode(enc, ev)
	})
	return ev, err
}

// hasEventAtTx reports whether an event row for (intentID, ts) exists, the
// dedupe key used by fixture import.
func hasEventAtTx(tx *bolt.Tx, intentID string, ts int64) bool {
	prefix := append(eventKeyPrefix(intentID), bytesutil.Uint64ToBytesBigEndian(uint64(ts))...)
	k, _ := tx.Bucket(intentEventsBucket).Cursor().Seek(prefix)
	return k != nil && bytes.HasPrefix(k, prefix)
}
