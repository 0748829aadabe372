package ingest

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/kv"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

func setupService(t *testing.T) (*Service, *kv.Store) {
	params.SetupTestConfigCleanup(t)
	params.OverrideKestrelConfig(params.TestConfig())

	store, err := kv.NewKVStore(t.TempDir(), &kv.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	svc, err := New(&Config{DB: store})
	require.NoError(t, err)
	return svc, store
}

func submissionBody(intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"intent_id":%q,"target_chain":"eth-mainnet","deadline_ms":1700000060000}`, intentID))
}

func TestSubmit_AcceptsFreshIntent(t *testing.T) {
	svc, store := setupService(t)

	resp, reason := svc.Submit(context.Background(), submissionBody("i-1"))
	require.Equal(t, true, reason == nil)
	assert.Equal(t, "i-1", resp.IntentID)
	assert.Equal(t, DecisionAccepted, resp.Decision)
	assert.NotEqual(t, "", resp.CorrelationID)
	assert.NotEqual(t, "", resp.RequestHash)
	assert.Equal(t, params.KestrelConfig().StatusURLPrefix+"i-1", resp.StatusURL)

	row, err := store.Intent(context.Background(), "i-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, intent.Received, row.State)
	assert.Equal(t, resp.RequestHash, row.RequestHash)
}

func TestSubmit_IdempotentReplay(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	first, reason := svc.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)
	second, reason := svc.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)

	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, first.RequestHash, second.RequestHash)

	events, err := store.IntentEvents(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, 1, len(events), "Replay must not append a second RECEIVED event")
}

func TestSubmit_ReplaySurvivesCacheLoss(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	first, reason := svc.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)

	// A fresh service over the same store: the decision cache is empty but
	// the dedupe must still hold.
	svc2, err := New(&Config{DB: store})
	require.NoError(t, err)
	second, reason := svc2.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)
}

func TestSubmit_IdempotencyConflict(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, reason := svc.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)

	conflicting := []byte(`{"intent_id":"i-1","target_chain":"eth-sepolia","deadline_ms":1700000060000}`)
	_, reason = svc.Submit(ctx, conflicting)
	require.NotNil(t, reason)
	assert.Equal(t, intent.CodeClientIdempotencyConflict, reason.Code)
}

func TestSubmit_ReformattedBodyHashesEqual(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	first, reason := svc.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)

	// Same content, different key order and whitespace.
	reordered := []byte(`{
		"deadline_ms": 1700000060000,
		"target_chain": "eth-mainnet",
		"intent_id": "i-1"
	}`)
	second, reason := svc.Submit(ctx, reordered)
	require.Equal(t, true, reason == nil)
	assert.Equal(t, first.RequestHash, second.RequestHash)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)
}

func TestSubmit_RejectsUnknownKey(t *testing.T) {
	svc, _ := setupService(t)

	_, reason := svc.Submit(context.Background(), []byte(`{"intent_id":"i-1","surprise":true}`))
	require.NotNil(t, reason)
	assert.Equal(t, intent.CodeClientBadRequest, reason.Code)
	assert.Equal(t, "surprise", reason.Context["key"])
}

func TestSubmit_RejectsMissingIntentID(t *testing.T) {
	svc, _ := setupService(t)

	_, reason := svc.Submit(context.Background(), []byte(`{"target_chain":"eth-mainnet"}`))
	require.NotNil(t, reason)
	assert.Equal(t, intent.CodeClientBadRequest, reason.Code)
}

func TestSubmit_RejectsOversizeBody(t *testing.T) {
	svc, _ := setupService(t)
	cfg := params.KestrelConfig().Copy()
	cfg.MaxBodyBytes = 16
	params.OverrideKestrelConfig(cfg)

	_, reason := svc.Submit(context.Background(), submissionBody("i-1"))
	require.NotNil(t, reason)
	assert.Equal(t, intent.CodeScreenBodyTooLarge, reason.Code)
}

func TestSubmit_Throttled(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.TestConfig()
	cfg.ThrottlePerSecond = 1
	cfg.ThrottleBurst = 2
	params.OverrideKestrelConfig(cfg)

	store, err := kv.NewKVStore(t.TempDir(), &kv.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	svc, err := New(&Config{DB: store})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		resp, reason := svc.Submit(ctx, submissionBody(fmt.Sprintf("i-%d", i)))
		require.Equal(t, true, reason == nil)
		require.Equal(t, DecisionAccepted, resp.Decision)
	}
	resp, reason := svc.Submit(ctx, submissionBody("i-over"))
	require.Equal(t, true, reason == nil)
	assert.Equal(t, DecisionThrottled, resp.Decision)
	assert.Equal(t, intent.CodeQueueThrottled, resp.ReasonCode)
}

func TestStatus_UnknownIntent(t *testing.T) {
	svc, _ := setupService(t)

	_, reason := svc.Status(context.Background(), "ghost")
	require.NotNil(t, reason)
	assert.Equal(t, intent.CodeClientNotFound, reason.Code)
	assert.Equal(t, http.StatusNotFound, reason.HTTPStatus())
}

func TestStatus_AssemblesView(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	resp, reason := svc.Submit(ctx, submissionBody("i-1"))
	require.Equal(t, true, reason == nil)

	st, sreason := svc.Status(ctx, "i-1")
	require.Equal(t, true, sreason == nil)
	assert.Equal(t, "i-1", st.IntentID)
	assert.Equal(t, "RECEIVED", st.State)
	assert.Equal(t, resp.CorrelationID, st.CorrelationID)
	if _, ok := st.TimestampsMs["RECEIVED"]; !ok {
		t.Fatal("Status must carry the RECEIVED timestamp")
	}
	assert.Equal(t, nil, st.SimSummary)

	rec := &intent.SubmissionRecord{BundleID: "b-1"}
	require.NoError(t, store.SaveSubmissionRecord(ctx, "i-1", rec))
	st, sreason = svc.Status(ctx, "i-1")
	require.Equal(t, true, sreason == nil)
	assert.Equal(t, "b-1", st.BundleID)
}

func TestCanonicalize_SortsAndCompacts(t *testing.T) {
	canonical, reason := Canonicalize([]byte(`{ "target_chain" : "eth-mainnet", "intent_id": "a" }`))
	require.Equal(t, true, reason == nil)
	assert.Equal(t, `{"intent_id":"a","target_chain":"eth-mainnet"}`, string(canonical))
}

func TestCanonicalize_PreservesNumbersVerbatim(t *testing.T) {
	canonical, reason := Canonicalize([]byte(`{"intent_id":"a","deadline_ms":1700000060000}`))
	require.Equal(t, true, reason == nil)
	assert.Equal(t, `{"deadline_ms":1700000060000,"intent_id":"a"}`, string(canonical))
}

func TestCanonicalize_RejectsNonObject(t *testing.T) {
	_, reason := Canonicalize([]byte(`[1,2,3]`))
	require.NotNil(t, reason)
	assert.Equal(t, intent.CodeClientBadRequest, reason.Code)
}

func TestRequestHash_StableAndPrefixed(t *testing.T) {
	h1 := RequestHash([]byte(`{"a":1}`))
	h2 := RequestHash([]byte(`{"a":1}`))
	assert.Equal(t, h1, h2)
	assert.Equal(t, 66, len(h1)) // 0x + 32 bytes hex
	assert.NotEqual(t, h1, RequestHash([]byte(`{"a":2}`)))
}
