package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

func setupGateway(t *testing.T) *Gateway {
	svc, _ := setupService(t)
	return NewGateway(context.Background(), svc, "127.0.0.1:0")
}

func TestGateway_SubmitAccepted(t *testing.T) {
	g := setupGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/intents", bytes.NewReader(submissionBody("i-1")))
	rec := httptest.NewRecorder()
	g.handleSubmit(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp SubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "i-1", resp.IntentID)
	assert.Equal(t, DecisionAccepted, resp.Decision)
}

func TestGateway_SubmitRejectionCarriesEnvelope(t *testing.T) {
	g := setupGateway(t)

	body := []byte(`{"intent_id":"i-2","target_chain":"eth-mainnet","surprise":1}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/intents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	g.handleSubmit(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, intent.CodeClientBadRequest, env.Reason.Code)
	assert.Equal(t, intent.CategoryClient, env.Reason.Category)
	assert.NotEqual(t, "", env.CorrID)
	assert.NotEqual(t, "", env.Ts)
}

func TestGateway_SubmitRequiresPost(t *testing.T) {
	g := setupGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/intents", nil)
	rec := httptest.NewRecorder()
	g.handleSubmit(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGateway_StatusRoundtrip(t *testing.T) {
	svc, _ := setupService(t)
	g := NewGateway(context.Background(), svc, "127.0.0.1:0")

	_, reason := svc.Submit(context.Background(), submissionBody("i-3"))
	require.Equal(t, true, reason == nil)

	req := httptest.NewRequest(http.MethodGet, params.KestrelConfig().StatusURLPrefix+"i-3", nil)
	rec := httptest.NewRecorder()
	g.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "i-3", resp.IntentID)
	assert.Equal(t, intent.Received.String(), resp.State)
}

func TestGateway_StatusReportsServeFailure(t *testing.T) {
	svc, _ := setupService(t)
	g := NewGateway(context.Background(), svc, "not a listen address")
	g.Start()
	t.Cleanup(func() {
		if err := g.Stop(); err != nil {
			t.Error(err)
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for g.Status() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, g.Status())
}

func TestGateway_StatusUnknownIntent(t *testing.T) {
	g := setupGateway(t)

	req := httptest.NewRequest(http.MethodGet, params.KestrelConfig().StatusURLPrefix+"nope", nil)
	rec := httptest.NewRecorder()
	g.handleStatus(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, intent.CodeClientNotFound, env.Reason.Code)
}
