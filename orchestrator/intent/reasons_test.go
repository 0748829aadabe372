package intent_test

import (
	"net/http"
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

func TestReason_RetryableByFamily(t *testing.T) {
	tests := []struct {
		name      string
		reason    *intent.Reason
		retryable bool
	}{
		{"queue throttled", intent.QueueReason(intent.CodeQueueThrottled, "backpressure"), true},
		{"network provider", intent.NetworkReason(intent.CodeNetworkProviderUnavailable, "rpc down"), true},
		{"network all failed", intent.NetworkReason(intent.CodeNetworkSubmissionAllFailed, "no lane acked"), true},
		{"client conflict", intent.ClientReason(intent.CodeClientIdempotencyConflict, "hash differs"), false},
		{"validation", intent.ValidationReason(intent.CodeValidationBadSignature, "bad sig"), false},
		{"policy", intent.PolicyReason(intent.CodePolicyFeeTooLow, "below floor"), false},
		{"screen", intent.ScreenReason(intent.CodeScreenReplaySeen, "replay"), false},
		{"internal", intent.InternalReason(intent.CodeInternalError, "bug"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.reason.Retryable())
		})
	}
}

func TestReason_HTTPStatus(t *testing.T) {
	tests := []struct {
		reason *intent.Reason
		status int
	}{
		{intent.ClientReason(intent.CodeClientBadRequest, ""), http.StatusBadRequest},
		{intent.ClientReason(intent.CodeClientNotFound, ""), http.StatusNotFound},
		{intent.ClientReason(intent.CodeClientDuplicateIntentID, ""), http.StatusConflict},
		{intent.ClientReason(intent.CodeClientIdempotencyConflict, ""), http.StatusConflict},
		{intent.QueueReason(intent.CodeQueueThrottled, ""), http.StatusTooManyRequests},
		{intent.ScreenReason(intent.CodeScreenDeadlineExpired, ""), http.StatusUnprocessableEntity},
		{intent.ValidationReason(intent.CodeValidationBadTxEncoding, ""), http.StatusUnprocessableEntity},
		{intent.PolicyReason(intent.CodePolicyCapitalDenied, ""), http.StatusUnprocessableEntity},
		{intent.NetworkReason(intent.CodeNetworkSubmissionAllFailed, ""), http.StatusBadGateway},
		{intent.InternalReason(intent.CodeInternalError, ""), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.reason.Code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.reason.HTTPStatus())
		})
	}
}

func TestReason_ErrorString(t *testing.T) {
	r := intent.PolicyReason(intent.CodePolicyFeeTooLow, "tip 1 below floor 2")
	assert.Equal(t, "POLICY_FEE_TOO_LOW: tip 1 below floor 2", r.Error())
	bare := intent.InternalReason(intent.CodeShutdown, "")
	assert.Equal(t, "SHUTDOWN", bare.Error())
}

func TestReason_WithContextCopies(t *testing.T) {
	base := intent.PolicyReason(intent.CodePolicyCapitalDenied, "denied")
	withCtx := base.WithContext("cap", "1000")
	require.NotNil(t, withCtx.Context)
	assert.Equal(t, "1000", withCtx.Context["cap"])
	assert.Equal(t, 0, len(base.Context), "original reason must stay untouched")
}
