package relay

import (
	"context"
	"sync"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Ack is a relay acknowledgement: which lane accepted the bundle and under
// which bundle-hash-like identifier.
type Ack struct {
	LaneID     string `json:"lane_id"`
	BundleHash string `json:"bundle_hash"`
}

// Fanout executes relay plans against concrete lanes.
type Fanout struct {
	lanes map[string]Lane
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFanout builds a fan-out over the given lanes.
func NewFanout(lanes []Lane) *Fanout {
	byID := make(map[string]Lane, len(lanes))
	for _, lane := range lanes {
		byID[lane.ID()] = lane
	}
	return &Fanout{
		lanes: byID,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Execute runs the relay plan. The first lane acknowledgement wins; a later
// conflicting acknowledgement is logged and ignored. A nil reason means
// success.
func (f *Fanout) Execute(ctx context.Context, plan *bundle.Plan, rp *RelayPlan) (*Ack, *intent.Reason) {
	if len(rp.Targets) == 0 {
		return nil, intent.NetworkReason(intent.CodeNetworkSubmissionAllFailed, "no relay lanes available")
	}
	if f.deadlineExceeded(plan) {
		return nil, intent.NetworkReason(intent.CodeNetworkDeadlineExceeded, "bundle deadline passed before submission")
	}
	if rp.Strategy == StrategyParallelPreferAuth {
		return f.parallel(ctx, plan, rp)
	}
	return f.sequential(ctx, plan, rp)
}

func (f *Fanout) parallel(ctx context.Context, plan *bundle.Plan, rp *RelayPlan) (*Ack, *intent.Reason) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var winner *Ack
	g, ctx := errgroup.WithContext(ctx)
	for _, target := range rp.Targets {
		lane, ok := f.lanes[target]
		if !ok {
			log.WithField("lane", target).Warn("Routed lane is not configured, skipping")
			continue
		}
		g.Go(func() error {
			hash, err := f.submit(ctx, lane, plan)
			if err != nil {
				return nil // an individual lane failure is handled locally
			}
			mu.Lock()
			defer mu.Unlock()
			if winner == nil {
				winner = &Ack{LaneID: lane.ID(), BundleHash: hash}
				cancel()
			} else if winner.BundleHash != hash {
				log.WithFields(logrus.Fields{
					"lane":       lane.ID(),
					"bundleHash": hash,
					"winnerLane": winner.LaneID,
					"winnerHash": winner.BundleHash,
				}).Warn("Conflicting relay acknowledgement ignored")
			}
			return nil
		})
	}
	_ = g.Wait()
	if winner != nil {
		return winner, nil
	}
	if f.deadlineExceeded(plan) {
		return nil, intent.NetworkReason(intent.CodeNetworkDeadlineExceeded, "bundle deadline passed during submission")
	}
	return nil, intent.NetworkReason(intent.CodeNetworkSubmissionAllFailed, "every relay lane refused the bundle")
}

func (f *Fanout) sequential(ctx context.Context, plan *bundle.Plan, rp *RelayPlan) (*Ack, *intent.Reason) {
	for i, target := range rp.Targets {
		if f.deadlineExceeded(plan) {
			return nil, intent.NetworkReason(intent.CodeNetworkDeadlineExceeded, "bundle deadline passed during submission")
		}
		lane, ok := f.lanes[target]
		if !ok {
			log.WithField("lane", target).Warn("Routed lane is not configured, skipping")
			continue
		}
		hash, err := f.submit(ctx, lane, plan)
		if err == nil {
			return &Ack{LaneID: lane.ID(), BundleHash: hash}, nil
		}
		if i < len(rp.Targets)-1 {
			wait := time.Duration(rp.BackoffMs[i]+rp.JitterMs[i]) * time.Millisecond
			if err := f.sleep(ctx, wait); err != nil {
				return nil, intent.InternalReason(intent.CodeShutdown, "submission cancelled")
			}
		}
	}
	if f.deadlineExceeded(plan) {
		return nil, intent.NetworkReason(intent.CodeNetworkDeadlineExceeded, "bundle deadline passed during submission")
	}
	return nil, intent.NetworkReason(intent.CodeNetworkSubmissionAllFailed, "every relay lane refused the bundle")
}

// submit wraps one lane attempt with the per-call deadline
// min(plan deadline, configured ceiling) and outcome accounting.
func (f *Fanout) submit(ctx context.Context, lane Lane, plan *bundle.Plan) (string, error) {
	timeout := time.Duration(params.KestrelConfig().RelayCallTimeoutMs) * time.Millisecond
	if untilDeadline := time.Duration(plan.DeadlineMs-f.now().UnixMilli()) * time.Millisecond; untilDeadline < timeout {
		timeout = untilDeadline
	}
	if timeout <= 0 {
		return "", context.DeadlineExceeded
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash, err := lane.SubmitBundle(callCtx, plan)
	if err != nil {
		relaySubmissionsTotal.WithLabelValues(lane.ID(), "error").Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"lane":     lane.ID(),
			"bundleID": plan.BundleID,
		}).Debug("Lane submission failed")
		return "", err
	}
	relaySubmissionsTotal.WithLabelValues(lane.ID(), "ok").Inc()
	return hash, nil
}

func (f *Fanout) deadlineExceeded(plan *bundle.Plan) bool {
	return f.now().UnixMilli() > plan.DeadlineMs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
