package intent

import "net/http"

// Reason categories. The category, not the code, decides the caller's retry
// policy and the HTTP status of the error envelope.
const (
	CategoryScreen     = "SCREEN"
	CategoryValidation = "VALIDATION"
	CategoryPolicy     = "POLICY"
	CategoryClient     = "CLIENT"
	CategoryQueue      = "QUEUE"
	CategoryNetwork    = "NETWORK"
	CategoryInternal   = "INTERNAL"
)

// Reason codes are a stable caller contract. Renaming one is a breaking change.
const (
	CodeScreenBodyTooLarge    = "SCREEN_BODY_TOO_LARGE"
	CodeScreenUnknownChain    = "SCREEN_UNKNOWN_CHAIN"
	CodeScreenDeadlineExpired = "SCREEN_DEADLINE_EXPIRED"
	CodeScreenReplaySeen      = "SCREEN_REPLAY_SEEN"

	CodeValidationBadTxEncoding = "VALIDATION_BAD_TX_ENCODING"
	CodeValidationBadSignature  = "VALIDATION_BAD_SIGNATURE"

	CodePolicyFeeTooLow     = "POLICY_FEE_TOO_LOW"
	CodePolicyDenylisted    = "POLICY_DENYLISTED"
	CodePolicyCapitalDenied = "POLICY_CAPITAL_DENIED"

	CodeClientBadRequest          = "CLIENT_BAD_REQUEST"
	CodeClientNotFound            = "CLIENT_NOT_FOUND"
	CodeClientDuplicateIntentID   = "CLIENT_DUPLICATE_INTENT_ID"
	CodeClientIdempotencyConflict = "CLIENT_IDEMPOTENCY_CONFLICT"

	CodeQueueThrottled = "QUEUE_THROTTLED"

	CodeNetworkProviderUnavailable = "NETWORK_PROVIDER_UNAVAILABLE"
	CodeNetworkSubmissionAllFailed = "NETWORK_SUBMISSION_ALL_FAILED"
	CodeNetworkDeadlineExceeded    = "NETWORK_DEADLINE_EXCEEDED"

	CodeShutdown      = "SHUTDOWN"
	CodeInternalError = "INTERNAL_ERROR"
)

// Reason is a structured rejection carried on terminal REJECTED/DROPPED
// intents, in event rows, and in client error envelopes.
type Reason struct {
	Code     string            `json:"code"`
	Category string            `json:"category"`
	Message  string            `json:"message,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
}

// Error implements the error interface so stages can return a *Reason
// through plain error plumbing.
func (r *Reason) Error() string {
	if r.Message == "" {
		return r.Code
	}
	return r.Code + ": " + r.Message
}

// WithContext returns a copy of the reason with one more context entry.
func (r *Reason) WithContext(k, v string) *Reason {
	cp := *r
	cp.Context = make(map[string]string, len(r.Context)+1)
	for key, val := range r.Context {
		cp.Context[key] = val
	}
	cp.Context[k] = v
	return &cp
}

// Retryable reports whether a caller may retry the same submission with
// backoff. Only the QUEUE and NETWORK families are retryable.
func (r *Reason) Retryable() bool {
	return r.Category == CategoryQueue || r.Category == CategoryNetwork
}

// HTTPStatus maps the reason to the status code used in the canonical
// error envelope.
func (r *Reason) HTTPStatus() int {
	switch r.Code {
	case CodeClientNotFound:
		return http.StatusNotFound
	case CodeClientDuplicateIntentID, CodeClientIdempotencyConflict:
		return http.StatusConflict
	case CodeQueueThrottled:
		return http.StatusTooManyRequests
	}
	switch r.Category {
	case CategoryClient:
		return http.StatusBadRequest
	case CategoryScreen, CategoryValidation, CategoryPolicy:
		return http.StatusUnprocessableEntity
	case CategoryQueue:
		return http.StatusTooManyRequests
	case CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewReason builds a reason with an explicit category.
func NewReason(code, category, message string) *Reason {
	return &Reason{Code: code, Category: category, Message: message}
}

// ScreenReason builds a SCREEN family reason.
func ScreenReason(code, message string) *Reason {
	return NewReason(code, CategoryScreen, message)
}

// ValidationReason builds a VALIDATION family reason.
func ValidationReason(code, message string) *Reason {
	return NewReason(code, CategoryValidation, message)
}

// PolicyReason builds a POLICY family reason.
func PolicyReason(code, message string) *Reason {
	return NewReason(code, CategoryPolicy, message)
}

// ClientReason builds a CLIENT family reason.
func ClientReason(code, message string) *Reason {
	return NewReason(code, CategoryClient, message)
}

// QueueReason builds a QUEUE family reason.
func QueueReason(code, message string) *Reason {
	return NewReason(code, CategoryQueue, message)
}

// NetworkReason builds a NETWORK family reason.
func NetworkReason(code, message string) *Reason {
	return NewReason(code, CategoryNetwork, message)
}

// InternalReason builds an INTERNAL family reason.
func InternalReason(code, message string) *Reason {
	return NewReason(code, CategoryInternal, message)
}
