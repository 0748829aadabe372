package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/async"
	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/iface"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/feed"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/transition"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
)

// AcceptedNotifier delivers freshly accepted intents; the ingest boundary
// implements it.
type AcceptedNotifier interface {
	SubscribeAccepted(ch chan<- *feed.Event) event.Subscription
}

// Config holds the pipeline's collaborators.
type Config struct {
	DB       iface.Database
	Executor *transition.Executor
	// Notifier is optional; without it the pipeline runs on sweeps alone.
	Notifier AcceptedNotifier
	// Provider is optional; see EnrichStage.
	Provider Provider
	// Guard is optional; see PolicyStage.
	Guard CapitalGuard
}

// Service drives intents through the stage sequence with a bounded worker
// pool. A periodic sweep recovers RECEIVED intents lost to a crash or a full
// queue.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	stages []Stage

	work chan string
	quit chan struct{}
	wg   sync.WaitGroup

	// inflight suppresses concurrent duplicate work on one intent; the CAS
	// advance remains the correctness backstop.
	inflight sync.Map

	sub        event.Subscription
	acceptedCh chan *feed.Event
}

// New builds the pipeline service.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		stages: []Stage{
			NewScreenStage(cfg.DB),
			NewValidateStage(),
			NewEnrichStage(cfg.Provider),
			NewPolicyStage(cfg.Guard),
		},
		work:       make(chan string, params.KestrelConfig().PipelineWorkers*2),
		quit:       make(chan struct{}),
		acceptedCh: make(chan *feed.Event, 16),
	}
}

// Start implements runtime.Service.
func (s *Service) Start() {
	workers := params.KestrelConfig().PipelineWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	if s.cfg.Notifier != nil {
		s.sub = s.cfg.Notifier.SubscribeAccepted(s.acceptedCh)
		go s.listen()
	}
	sweep := time.Duration(params.KestrelConfig().SweepIntervalMs) * time.Millisecond
	async.RunEvery(s.ctx, sweep, s.sweep)
	log.WithField("workers", workers).Info("Pipeline started")
}

// Stop implements runtime.Service.
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
		log.Warn("Shutdown grace expired with staged intents in flight")
	}
	s.cancel()
	return nil
}

// Status implements runtime.Service.
func (s *Service) Status() error {
	return nil
}

func (s *Service) listen() {
	for {
		select {
		case ev := <-s.acceptedCh:
			data, ok := ev.Data.(*feed.IntentAcceptedData)
			if !ok {
				continue
			}
			s.enqueue(data.IntentID)
		case <-s.ctx.Done():
			return
		}
	}
}

// sweep re-queues intents stranded before QUEUED.
func (s *Service) sweep() {
	for _, st := range []intent.State{intent.Received, intent.Screened, intent.Validated, intent.Enriched} {
		ids, err := s.cfg.DB.IntentIDsByState(s.ctx, st)
		if err != nil {
			log.WithError(err).Error("Could not sweep staged intents")
			return
		}
		for _, id := range ids {
			s.enqueue(id)
		}
	}
}

func (s *Service) enqueue(id string) {
	select {
	case s.work <- id:
	case <-s.quit:
	default:
		log.WithField("intentID", id).Debug("Pipeline queue full, deferring to sweep")
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

// process runs the remaining stages for one intent, resuming from its
// current state.
func (s *Service) process(id string) {
	if _, busy := s.inflight.LoadOrStore(id, struct{}{}); busy {
		return
	}
	defer s.inflight.Delete(id)

	row, err := s.cfg.DB.Intent(s.ctx, id)
	if err != nil {
		log.WithError(err).WithField("intentID", id).Error("Could not read intent")
		return
	}
	if row == nil {
		return
	}
	start, ok := stageIndex(row.State)
	if !ok {
		return
	}

	sc := &StageContext{
		Intent:      row,
		CorrID:      row.CorrelationID,
		RequestHash: row.RequestHash,
		NowMs:       time.Now().UnixMilli(),
	}
	for _, stage := range s.stages[start:] {
		if s.ctx.Err() != nil {
			return
		}
		began := time.Now()
		reason := stage.Run(s.ctx, sc)
		stageLatency.WithLabelValues(stage.Name()).Observe(time.Since(began).Seconds())

		if reason != nil {
			s.fail(row, stage.Name(), reason)
			return
		}
		if _, err := s.cfg.Executor.Advance(s.ctx, id, stage.Target(), row.CorrelationID, nil); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"intentID": id,
				"stage":    stage.Name(),
			}).Debug("Stage advance failed, abandoning task")
			return
		}
		if stage.Target() == intent.Enriched && sc.Sim != nil {
			if err := s.cfg.DB.SaveSimSummary(s.ctx, id, sc.Sim); err != nil {
				log.WithError(err).WithField("intentID", id).Error("Could not save sim summary")
			}
		}
	}
}

// fail moves the intent to its failure terminal: DROPPED for internal
// errors, REJECTED for everything else.
func (s *Service) fail(row *intent.Intent, stageName string, reason *intent.Reason) {
	target := intent.Rejected
	if reason.Category == intent.CategoryInternal {
		target = intent.Dropped
	}
	if _, err := s.cfg.Executor.Advance(s.ctx, row.ID, target, row.CorrelationID, reason); err != nil {
		log.WithError(err).WithField("intentID", row.ID).Error("Could not advance to failure terminal")
		return
	}
	log.WithFields(logrus.Fields{
		"intentID":   row.ID,
		"stage":      stageName,
		"reasonCode": reason.Code,
	}).Info("Intent rejected")
}

// stageIndex maps a state to the next stage to run. States at or past
// QUEUED have left the pipeline.
func stageIndex(st intent.State) (int, bool) {
	switch st {
	case intent.Received:
		return 0, true
	case intent.Screened:
		return 1, true
	case intent.Validated:
		return 2, true
	case intent.Enriched:
		return 3, true
	default:
		return 0, false
	}
}
