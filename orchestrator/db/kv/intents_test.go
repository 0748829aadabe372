package kv

import (
	"context"
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

func testPayload() intent.Payload {
	return intent.Payload{
		TargetChain: "eth-mainnet",
		DeadlineMs:  1700000060000,
	}
}

func TestStore_CreateIntent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	row, err := db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, intent.Received, row.State)
	assert.Equal(t, uint64(0), row.Version)
	assert.Equal(t, "corr-1", row.CorrelationID)

	got, err := db.Intent(ctx, "intent-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0xhash1", got.RequestHash)
	assert.DeepEqual(t, testPayload(), got.Payload)

	events, err := db.IntentEvents(ctx, "intent-1")
	require.NoError(t, err)
	require.Equal(t, 1, len(events))
	assert.Equal(t, intent.Received, events[0].ToState)
	if events[0].FromState != nil {
		t.Errorf("Initial event should have nil from_state, got %v", *events[0].FromState)
	}
}

func TestStore_CreateIntent_DuplicateID(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)
	_, err = db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash2", "corr-2")
	require.ErrorContains(t, intent.CodeClientDuplicateIntentID, err)

	// The failed create must not append a second RECEIVED event.
	events, err := db.IntentEvents(ctx, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, len(events))
}

func TestStore_Intent_Missing(t *testing.T) {
	db := setupDB(t)
	got, err := db.Intent(context.Background(), "nope")
	require.NoError(t, err)
	if got != nil {
		t.Errorf("Expected nil intent, got %+v", got)
	}
	exists, err := db.HasIntent(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, false, exists)
}

func TestStore_AdvanceIntent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)

	row, err := db.AdvanceIntent(ctx, "intent-1", 0, intent.Screened, nil, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, intent.Screened, row.State)
	assert.Equal(t, uint64(1), row.Version)

	events, err := db.IntentEvents(ctx, "intent-1")
	require.NoError(t, err)
	require.Equal(t, 2, len(events))
	require.NotNil(t, events[1].FromState)
	assert.Equal(t, intent.Received, *events[1].FromState)
	assert.Equal(t, intent.Screened, events[1].ToState)

	last, err := db.LastEvent(ctx, "intent-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, intent.Screened, last.ToState)
}

func TestStore_AdvanceIntent_VersionConflict(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)
	_, err = db.AdvanceIntent(ctx, "intent-1", 0, intent.Screened, nil, "corr-1")
	require.NoError(t, err)

	// A stale writer must not move the row or append an event.
	_, err = db.AdvanceIntent(ctx, "intent-1", 0, intent.Screened, nil, "corr-1")
	require.Equal(t, ErrVersionConflict, err)

	row, err := db.Intent(ctx, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), row.Version)
	events, err := db.IntentEvents(ctx, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, 2, len(events))
}

func TestStore_AdvanceIntent_TerminalReason(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)
	_, err = db.AdvanceIntent(ctx, "intent-1", 0, intent.Screened, nil, "corr-1")
	require.NoError(t, err)

	reason := intent.ValidationReason(intent.CodeValidationBadSignature, "bad signature")
	row, err := db.AdvanceIntent(ctx, "intent-1", 1, intent.Rejected, reason, "corr-1")
	require.NoError(t, err)
	require.NotNil(t, row.LastReason)
	assert.Equal(t, intent.CodeValidationBadSignature, row.LastReason.Code)

	last, err := db.LastEvent(ctx, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, intent.CodeValidationBadSignature, last.ReasonCode)
	assert.Equal(t, intent.CategoryValidation, last.ReasonCategory)
}

func TestStore_AdvanceIntent_Missing(t *testing.T) {
	db := setupDB(t)
	_, err := db.AdvanceIntent(context.Background(), "nope", 0, intent.Screened, nil, "corr-1")
	require.Equal(t, ErrNotFound, err)
}

func TestStore_SeenRequestHash(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, _, err := db.SeenRequestHash(ctx, "0xhash1")
	require.NoError(t, err)

	_, err = db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)

	id, seen, err := db.SeenRequestHash(ctx, "0xhash1")
	require.NoError(t, err)
	assert.Equal(t, true, seen)
	assert.Equal(t, "intent-1", id)

	_, seen, err = db.SeenRequestHash(ctx, "0xother")
	require.NoError(t, err)
	assert.Equal(t, false, seen)
}

func TestStore_IntentIDsByState(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.CreateIntent(ctx, "intent-1", testPayload(), "0xhash1", "corr-1")
	require.NoError(t, err)
	_, err = db.CreateIntent(ctx, "intent-2", testPayload(), "0xhash2", "corr-2")
	require.NoError(t, err)
	_, err = db.AdvanceIntent(ctx, "intent-2", 0, intent.Screened, nil, "corr-2")
	require.NoError(t, err)

	received, err := db.IntentIDsByState(ctx, intent.Received)
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"intent-1"}, received)

	screened, err := db.IntentIDsByState(ctx, intent.Screened)
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"intent-2"}, screened)
}
