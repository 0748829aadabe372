// Package ingest is the client submission boundary: canonicalization,
// request hashing, idempotency, correlation, and throttling. It is the only
// code that creates intent rows.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/audit"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/iface"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/feed"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/transition"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kevinms/leakybucket-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ingest")

// Boundary decisions.
const (
	DecisionAccepted  = "accepted"
	DecisionRejected  = "rejected"
	DecisionThrottled = "throttled"
)

// throttleKey is the single shared bucket; throttling is process-wide, not
// per client.
const throttleKey = "ingest"

// SubmissionResponse is the success shape of the submission endpoint.
type SubmissionResponse struct {
	IntentID      string `json:"intent_id"`
	Decision      string `json:"decision"`
	ReasonCode    string `json:"reason_code,omitempty"`
	RequestHash   string `json:"request_hash,omitempty"`
	StatusURL     string `json:"status_url,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// StatusResponse is the status endpoint shape.
type StatusResponse struct {
	IntentID         string                  `json:"intent_id"`
	State            string                  `json:"state"`
	ReasonCode       string                  `json:"reason_code,omitempty"`
	SimSummary       interface{}             `json:"sim_summary"`
	BundleID         string                  `json:"bundle_id,omitempty"`
	RelaySubmissions []intent.LaneSubmission `json:"relay_submissions,omitempty"`
	TimestampsMs     map[string]int64        `json:"timestamps_ms"`
	CorrelationID    string                  `json:"correlation_id"`
}

// decisionEntry is a cached boundary decision for one intent id.
type decisionEntry struct {
	requestHash string
	response    *SubmissionResponse
}

// Config holds the boundary's collaborators.
type Config struct {
	DB iface.Database
	// Audit receives client submission records; optional.
	Audit *audit.Logger
}

// Service is the submission boundary.
type Service struct {
	db           iface.Database
	audit        *audit.Logger
	throttle     *leakybucket.Collector
	decisions    *lru.Cache
	acceptedFeed event.Feed
}

// New builds the boundary service.
func New(cfg *Config) (*Service, error) {
	c := params.KestrelConfig()
	decisions, err := lru.New(c.DecisionCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not create decision cache")
	}
	return &Service{
		db:        cfg.DB,
		audit:     cfg.Audit,
		throttle:  leakybucket.NewCollector(float64(c.ThrottlePerSecond), c.ThrottleBurst, false),
		decisions: decisions,
	}, nil
}

// SubscribeAccepted delivers a feed.Event with IntentAcceptedData for every
// freshly created intent. The pipeline picks these up.
func (s *Service) SubscribeAccepted(ch chan<- *feed.Event) event.Subscription {
	return s.acceptedFeed.Subscribe(ch)
}

// Submit handles one submission body. Replays with the same (intent_id,
// request_hash) return the original decision without touching state; a nil
// reason means the response is authoritative.
func (s *Service) Submit(ctx context.Context, body []byte) (*SubmissionResponse, *intent.Reason) {
	if s.throttle.Add(throttleKey, 1) == 0 {
		intentsTotal.WithLabelValues(DecisionThrottled).Inc()
		return &SubmissionResponse{
			Decision:   DecisionThrottled,
			ReasonCode: intent.CodeQueueThrottled,
		}, nil
	}
	if max := params.KestrelConfig().MaxBodyBytes; uint64(len(body)) > max {
		return nil, s.reject(intent.ScreenReason(intent.CodeScreenBodyTooLarge, "submission body too large"))
	}

	canonical, reason := Canonicalize(body)
	if reason != nil {
		return nil, s.reject(reason)
	}
	var head struct {
		IntentID string `json:"intent_id"`
	}
	if err := json.Unmarshal(canonical, &head); err != nil || head.IntentID == "" {
		return nil, s.reject(intent.ClientReason(intent.CodeClientBadRequest, "intent_id is required"))
	}
	requestHash := RequestHash(canonical)

	if cached, ok := s.decisions.Get(head.IntentID); ok {
		entry := cached.(*decisionEntry)
		if entry.requestHash == requestHash {
			return entry.response, nil
		}
		return nil, s.reject(intent.ClientReason(intent.CodeClientIdempotencyConflict,
			"intent id replayed with a different body").WithContext("intent_id", head.IntentID))
	}

	// Cache miss does not mean new: the decision cache is bounded and the
	// process restarts, so the store is the durable dedupe.
	row, err := s.db.Intent(ctx, head.IntentID)
	if err != nil {
		log.WithError(err).Error("Could not read intent for dedupe")
		return nil, s.reject(intent.InternalReason(intent.CodeInternalError, "store unavailable"))
	}
	if row != nil {
		if row.RequestHash != requestHash {
			return nil, s.reject(intent.ClientReason(intent.CodeClientIdempotencyConflict,
				"intent id replayed with a different body").WithContext("intent_id", head.IntentID))
		}
		resp := s.response(row.ID, requestHash, row.CorrelationID)
		s.decisions.Add(head.IntentID, &decisionEntry{requestHash: requestHash, response: resp})
		return resp, nil
	}

	var payload intent.Payload
	if err := json.Unmarshal(canonical, &payload); err != nil {
		return nil, s.reject(intent.ClientReason(intent.CodeClientBadRequest, "malformed payload"))
	}

	corrID := uuid.NewString()
	created, err := s.db.CreateIntent(ctx, head.IntentID, payload, requestHash, corrID)
	if err != nil {
		var r *intent.Reason
		if errors.As(err, &r) {
			return nil, s.reject(r)
		}
		log.WithError(err).Error("Could not create intent")
		return nil, s.reject(intent.InternalReason(intent.CodeInternalError, "store unavailable"))
	}

	resp := s.response(created.ID, requestHash, corrID)
	s.decisions.Add(head.IntentID, &decisionEntry{requestHash: requestHash, response: resp})
	intentsTotal.WithLabelValues(DecisionAccepted).Inc()
	s.auditSubmission(created, requestHash)
	s.acceptedFeed.Send(&feed.Event{
		Type: feed.IntentAccepted,
		Data: &feed.IntentAcceptedData{
			IntentID:      created.ID,
			CorrelationID: corrID,
			RequestHash:   requestHash,
		},
	})
	log.WithFields(logrus.Fields{
		"intentID": created.ID,
		"corrID":   corrID,
	}).Debug("Intent accepted")
	return resp, nil
}

// Status assembles the status view for one intent from the store.
func (s *Service) Status(ctx context.Context, intentID string) (*StatusResponse, *intent.Reason) {
	row, err := s.db.Intent(ctx, intentID)
	if err != nil {
		return nil, intent.InternalReason(intent.CodeInternalError, "store unavailable")
	}
	if row == nil {
		return nil, intent.ClientReason(intent.CodeClientNotFound, "unknown intent").WithContext("intent_id", intentID)
	}

	events, err := s.db.IntentEvents(ctx, intentID)
	if err != nil {
		return nil, intent.InternalReason(intent.CodeInternalError, "store unavailable")
	}
	timestamps := make(map[string]int64, len(events))
	reasonCode := ""
	for _, ev := range events {
		timestamps[ev.ToState.String()] = ev.Ts
		if ev.ReasonCode != "" {
			reasonCode = ev.ReasonCode
		}
	}
	if row.LastReason != nil {
		reasonCode = row.LastReason.Code
	}

	resp := &StatusResponse{
		IntentID:      row.ID,
		State:         row.State.String(),
		ReasonCode:    reasonCode,
		TimestampsMs:  timestamps,
		CorrelationID: row.CorrelationID,
	}
	if sim, err := s.db.SimSummary(ctx, intentID); err == nil && sim != nil {
		resp.SimSummary = sim
	}
	if rec, err := s.db.SubmissionRecord(ctx, intentID); err == nil && rec != nil {
		resp.BundleID = rec.BundleID
		resp.RelaySubmissions = rec.Submissions
	}
	return resp, nil
}

func (s *Service) response(intentID, requestHash, corrID string) *SubmissionResponse {
	return &SubmissionResponse{
		IntentID:      intentID,
		Decision:      DecisionAccepted,
		RequestHash:   requestHash,
		StatusURL:     params.KestrelConfig().StatusURLPrefix + intentID,
		CorrelationID: corrID,
	}
}

// reject counts the rejection and passes the reason through.
func (s *Service) reject(r *intent.Reason) *intent.Reason {
	intentsTotal.WithLabelValues(DecisionRejected).Inc()
	transition.RecordRejection(r.Code)
	return r
}

func (s *Service) auditSubmission(row *intent.Intent, requestHash string) {
	if s.audit == nil {
		return
	}
	rec := map[string]interface{}{
		"intent_id":    row.ID,
		"corr_id":      row.CorrelationID,
		"request_hash": requestHash,
		"target_chain": row.Payload.TargetChain,
		"decision":     DecisionAccepted,
	}
	if err := s.audit.Append(audit.SubjectSubmissions, rec); err != nil {
		log.WithError(err).Error("Could not append submission audit record")
	}
}
