// Package submitter drives QUEUED intents to a relay outcome: it assembles
// the bundle plan, applies the anti-MEV mitigation, scores and routes it,
// executes the fan-out, and advances the intent to SUBMITTED or DROPPED.
package submitter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/async"
	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/antimev"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/audit"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/iface"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/feed"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/predictor"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/relay"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/transition"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "submitter")

// Config holds the submitter's collaborators.
type Config struct {
	DB       iface.Database
	Executor *transition.Executor
	Tracker  *relay.HealthTracker
	Lanes    []relay.Lane
	Tuning   interface{ Get() *tuning.Snapshot }
	// Audit receives bundles, relay_plans, antimev_actions, and submissions
	// records; optional.
	Audit *audit.Logger
}

// Service consumes QUEUED intents from the transition feed plus a periodic
// state sweep, and submits one bundle per intent through the relay fan-out.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	fanout *relay.Fanout

	// processed suppresses duplicate deliveries of one intent (feed plus
	// sweep overlap). Ids are marked at the dispatch point: failures before
	// it stay eligible for the next sweep, failures after it must never
	// dispatch the bundle twice. The QUEUED state check and the CAS advance
	// remain the backstop for cache misses.
	processed *ristretto.Cache

	// inflight suppresses concurrent duplicate work on one intent.
	inflight sync.Map

	work chan string
	quit chan struct{}
	wg   sync.WaitGroup

	sub     event.Subscription
	transCh chan *feed.Event
}

// New builds the submitter service.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: params.KestrelConfig().IntentCacheSize * 10,
		MaxCost:     params.KestrelConfig().IntentCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create processed-intent cache")
	}
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		fanout:    relay.NewFanout(cfg.Lanes),
		processed: cache,
		work:      make(chan string, params.KestrelConfig().SubmitWorkers*2),
		quit:      make(chan struct{}),
		transCh:   make(chan *feed.Event, 16),
	}, nil
}

// Start implements runtime.Service.
func (s *Service) Start() {
	workers := params.KestrelConfig().SubmitWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.sub = s.cfg.Executor.SubscribeTransitions(s.transCh)
	go s.listen()

	sweep := time.Duration(params.KestrelConfig().SweepIntervalMs) * time.Millisecond
	async.RunEvery(s.ctx, sweep, s.sweep)
	log.WithField("workers", workers).Info("Submitter started")
}

// Stop implements runtime.Service: it stops accepting work and drains the
// pool for the configured grace period before cancelling in-flight
// submissions. Intents left QUEUED are recovered by the sweep on restart.
func (s *Service) Stop() error {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	close(s.quit)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	grace := time.Duration(params.KestrelConfig().ShutdownGraceMs) * time.Millisecond
	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("Shutdown grace expired with submissions in flight")
	}
	s.cancel()
	return nil
}

// Status implements runtime.Service.
func (s *Service) Status() error {
	return nil
}

// listen forwards QUEUED transitions into the work queue.
func (s *Service) listen() {
	for {
		select {
		case ev := <-s.transCh:
			data, ok := ev.Data.(*feed.StateTransitionData)
			if !ok || data.ToState != intent.Queued {
				continue
			}
			s.enqueue(data.IntentID)
		case <-s.ctx.Done():
			return
		}
	}
}

// sweep re-queues intents stranded in QUEUED, e.g. after a crash.
func (s *Service) sweep() {
	ids, err := s.cfg.DB.IntentIDsByState(s.ctx, intent.Queued)
	if err != nil {
		log.WithError(err).Error("Could not sweep queued intents")
		return
	}
	for _, id := range ids {
		s.enqueue(id)
	}
}

func (s *Service) enqueue(id string) {
	if _, seen := s.processed.Get(id); seen {
		return
	}
	select {
	case s.work <- id:
	case <-s.quit:
	default:
		// Queue full; the next sweep picks the intent up again.
		log.WithField("intentID", id).Debug("Submission queue full, deferring to sweep")
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		select {
		case id := <-s.work:
			s.process(id)
		case <-s.quit:
			return
		}
	}
}

// process runs the full submission path for one queued intent.
func (s *Service) process(id string) {
	if _, busy := s.inflight.LoadOrStore(id, struct{}{}); busy {
		return
	}
	defer s.inflight.Delete(id)
	if _, seen := s.processed.Get(id); seen {
		return
	}

	row, err := s.cfg.DB.Intent(s.ctx, id)
	if err != nil {
		log.WithError(err).WithField("intentID", id).Error("Could not read intent")
		return
	}
	if row == nil || row.State != intent.Queued {
		return
	}

	sim, err := s.cfg.DB.SimSummary(s.ctx, id)
	if err != nil {
		log.WithError(err).WithField("intentID", id).Error("Could not read sim summary")
		return
	}

	nowMs := time.Now().UnixMilli()
	plan, err := bundle.Assemble(row, sim, nowMs)
	if err != nil {
		s.drop(row, intent.InternalReason(intent.CodeInternalError, err.Error()))
		return
	}
	s.auditRecord(audit.SubjectBundles, map[string]interface{}{
		"intent_id":   id,
		"bundle_id":   plan.BundleID,
		"corr_id":     row.CorrelationID,
		"templates":   len(plan.TxTemplates),
		"deadline_ms": plan.DeadlineMs,
		"atomic":      plan.Atomic,
	})

	tun := s.cfg.Tuning.Get()
	mitigated := antimev.Mitigate(plan, antimev.Opts{
		IntentID: id,
		CorrID:   row.CorrelationID,
		NowMs:    nowMs,
	}, tun.AntiMEV)
	s.auditRecord(audit.SubjectAntiMEVActions, map[string]interface{}{
		"intent_id":     id,
		"bundle_id":     mitigated.BundleID,
		"corr_id":       row.CorrelationID,
		"not_before_ms": mitigated.NotBeforeMs,
		"decoys":        len(mitigated.TxTemplates) - len(plan.TxTemplates),
	})

	lanes := s.cfg.Tracker.Snapshot()
	est := predictor.Predict(mitigated, lanes, nowMs)
	rp := relay.Route(mitigated, lanes, tun.Router, rand.Float64)
	s.auditRecord(audit.SubjectRelayPlans, map[string]interface{}{
		"intent_id":    id,
		"bundle_id":    mitigated.BundleID,
		"corr_id":      row.CorrelationID,
		"targets":      rp.Targets,
		"strategy":     rp.Strategy,
		"p_inclusion":  est.PInclusion,
		"p_latency_ms": est.PLatencyMs,
	})

	if !s.waitNotBefore(mitigated.NotBeforeMs) {
		return
	}

	// Point of no return: once the fan-out starts, a transient failure must
	// not re-dispatch the bundle in this process.
	s.processed.Set(id, struct{}{}, 1)
	ack, reason := s.fanout.Execute(s.ctx, mitigated, rp)
	if reason != nil {
		s.auditRecord(audit.SubjectSubmissions, map[string]interface{}{
			"intent_id":   id,
			"bundle_id":   mitigated.BundleID,
			"corr_id":     row.CorrelationID,
			"outcome":     "dropped",
			"reason_code": reason.Code,
		})
		s.drop(row, reason)
		return
	}

	rec := &intent.SubmissionRecord{
		BundleID: mitigated.BundleID,
		Submissions: []intent.LaneSubmission{
			{Lane: ack.LaneID, BundleHash: ack.BundleHash, Ts: time.Now().UnixMilli()},
		},
	}
	if err := s.cfg.DB.SaveSubmissionRecord(s.ctx, id, rec); err != nil {
		log.WithError(err).WithField("intentID", id).Error("Could not save submission record")
	}
	if _, err := s.cfg.Executor.Advance(s.ctx, id, intent.Submitted, row.CorrelationID, nil); err != nil {
		log.WithError(err).WithField("intentID", id).Error("Could not advance to SUBMITTED")
		return
	}
	s.auditRecord(audit.SubjectSubmissions, map[string]interface{}{
		"intent_id":   id,
		"bundle_id":   mitigated.BundleID,
		"corr_id":     row.CorrelationID,
		"outcome":     "submitted",
		"lane":        ack.LaneID,
		"bundle_hash": ack.BundleHash,
	})
	log.WithFields(logrus.Fields{
		"intentID":   id,
		"bundleID":   mitigated.BundleID,
		"lane":       ack.LaneID,
		"bundleHash": ack.BundleHash,
	}).Info("Bundle submitted")
}

// waitNotBefore blocks until the mitigated dispatch time. Returns false when
// the service shut down while waiting; the sweep re-queues the intent.
func (s *Service) waitNotBefore(notBeforeMs int64) bool {
	wait := time.Duration(notBeforeMs-time.Now().UnixMilli()) * time.Millisecond
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Service) drop(row *intent.Intent, reason *intent.Reason) {
	if _, err := s.cfg.Executor.Advance(s.ctx, row.ID, intent.Dropped, row.CorrelationID, reason); err != nil {
		log.WithError(err).WithField("intentID", row.ID).Error("Could not advance to DROPPED")
	}
}

func (s *Service) auditRecord(subject string, rec map[string]interface{}) {
	if s.cfg.Audit == nil {
		return
	}
	if err := s.cfg.Audit.Append(subject, rec); err != nil {
		log.WithError(err).WithField("subject", subject).Error("Could not append audit record")
	}
}
