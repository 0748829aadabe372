// Package transition mediates every intent state change: it consults the
// transition relation, appends the audit event, and performs the optimistic
// compare-and-swap against the store.
package transition

import (
	"context"
	"fmt"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/feed"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

var log = logrus.WithField("prefix", "transition")

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kestrel_transitions_total",
	Help: "Successful intent state transitions by target state.",
}, []string{"to_state"})

var rejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kestrel_rejects_total",
	Help: "Reason-coded rejections, terminal and boundary.",
}, []string{"reason_code"})

// RecordRejection counts a reason-coded rejection that never reached the
// state machine, e.g. a submission refused at the client boundary.
func RecordRejection(code string) {
	rejectsTotal.WithLabelValues(code).Inc()
}

// InvalidTransitionError reports a requested advance the state machine
// forbids.
type InvalidTransitionError struct {
	From intent.State
	To   intent.State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Executor applies state changes to intents. All orchestrator code advances
// intents through an Executor; nothing writes to the store directly.
type Executor struct {
	db             db.Database
	transitionFeed event.Feed
}

// NewExecutor builds an executor over the given store.
func NewExecutor(database db.Database) *Executor {
	return &Executor{db: database}
}

// SubscribeTransitions delivers a feed.Event with StateTransitionData for
// every successful advance.
func (e *Executor) SubscribeTransitions(ch chan<- *feed.Event) event.Subscription {
	return e.transitionFeed.Subscribe(ch)
}

// Advance moves an intent to the target state.
//
// Replaying the state the intent is already in is a no-op returning that
// state; losing a concurrent race to a writer with the same target is
// likewise a no-op. Everything else that does not match the transition
// relation fails with InvalidTransitionError.
func (e *Executor) Advance(ctx context.Context, intentID string, to intent.State, corrID string, reason *intent.Reason) (intent.State, error) {
	ctx, span := trace.StartSpan(ctx, "transition.Advance")
	defer span.End()

	row, err := e.db.Intent(ctx, intentID)
	if err != nil {
		return 0, errors.Wrap(err, "could not read intent")
	}
	if row == nil {
		return 0, db.ErrNotFound
	}
	if !intent.Can(row.State, to) {
		if row.State == to {
			return row.State, nil
		}
		return 0, &InvalidTransitionError{From: row.State, To: to}
	}

	advanced, err := e.db.AdvanceIntent(ctx, intentID, row.Version, to, reason, corrID)
	if errors.Is(err, db.ErrVersionConflict) {
		// A concurrent writer won the race. If it moved the row to the same
		// target this advance is satisfied; the loser's event was rolled
		// back with its transaction.
		fresh, rerr := e.db.Intent(ctx, intentID)
		if rerr != nil {
			return 0, errors.Wrap(rerr, "could not re-read intent after version conflict")
		}
		if fresh != nil && fresh.State == to {
			return to, nil
		}
		from := row.State
		if fresh != nil {
			from = fresh.State
		}
		return 0, &InvalidTransitionError{From: from, To: to}
	}
	if err != nil {
		return 0, errors.Wrap(err, "could not advance intent")
	}

	transitionsTotal.WithLabelValues(to.String()).Inc()
	if intent.Terminal(to) && reason != nil {
		rejectsTotal.WithLabelValues(reason.Code).Inc()
	}
	log.WithFields(logrus.Fields{
		"intentID": intentID,
		"from":     row.State.String(),
		"to":       to.String(),
		"corrID":   corrID,
	}).Debug("Intent advanced")

	e.transitionFeed.Send(&feed.Event{
		Type: feed.StateTransition,
		Data: &feed.StateTransitionData{
			IntentID:      intentID,
			FromState:     intent.StatePtr(row.State),
			ToState:       advanced.State,
			CorrelationID: corrID,
			Reason:        reason,
		},
	})
	return advanced.State, nil
}
