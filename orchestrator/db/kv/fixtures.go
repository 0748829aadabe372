package kv

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ImportEventsJSONL loads fixture event rows, one JSON object per line.
// Malformed lines are logged and skipped; rows already present keyed by
// (intent_id, ts) are skipped so re-loading a fixture is idempotent.
// Returns the number of rows imported.
func (s *Store) ImportEventsJSONL(ctx context.Context, r io.Reader) (int, error) {
	_, span := trace.StartSpan(ctx, "intentDB.ImportEventsJSONL")
	defer span.End()

	imported := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	err := s.update(func(tx *bolt.Tx) error {
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			ev := &intent.Event{}
			if err := json.Unmarshal(line, ev); err != nil {
				log.WithError(err).WithField("line", lineNo).Warn("Skipping malformed fixture line")
				continue
			}
			if ev.IntentID == "" {
				log.WithField("line", lineNo).Warn("Skipping fixture line without intent_id")
				continue
			}
			if hasEventAtTx(tx, ev.IntentID, ev.Ts) {
				continue
			}
			if err := appendEventTx(tx, ev); err != nil {
				return err
			}
			imported++
		}
		return scanner.Err()
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// ExportEventsJSONL writes the event stream for an intent as JSONL.
func (s *Store) ExportEventsJSONL(ctx context.Context, w io.Writer, intentID string) error {
	events, err := s.IntentEvents(ctx, intentID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		enc, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(enc, '\n')); err != nil {
			return err
		}
	}
	return nil
}
