package relay

import (
	"context"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/async"
	"github.com/dchisholm125/kestrel-hq-sub001/config/features"
)

// StatusChecker is a lane that can be health-probed.
type StatusChecker interface {
	ID() string
	Authenticated() bool
	CheckStatus(ctx context.Context) (time.Duration, error)
}

// Prober periodically polls every lane's status endpoint and feeds the
// results into the health tracker.
type Prober struct {
	ctx      context.Context
	cancel   context.CancelFunc
	lanes    []StatusChecker
	tracker  *HealthTracker
	interval time.Duration
}

// NewProber builds the lane health prober.
func NewProber(ctx context.Context, lanes []StatusChecker, tracker *HealthTracker, interval time.Duration) *Prober {
	ctx, cancel := context.WithCancel(ctx)
	return &Prober{
		ctx:      ctx,
		cancel:   cancel,
		lanes:    lanes,
		tracker:  tracker,
		interval: interval,
	}
}

// Start begins the probe loop. Disabled lanes stay at their initial
// unhealthy state, which keeps routing on its degraded path.
func (p *Prober) Start() {
	if !features.Get().EnableLaneProber {
		log.Debug("Lane prober disabled")
		return
	}
	p.ProbeAll()
	async.RunEvery(p.ctx, p.interval, p.ProbeAll)
}

// Stop halts the probe loop.
func (p *Prober) Stop() error {
	p.cancel()
	return nil
}

// Status always returns nil; an unreachable lane degrades routing rather
// than the process.
func (p *Prober) Status() error {
	return nil
}

// ProbeAll checks every lane once.
func (p *Prober) ProbeAll() {
	for _, lane := range p.lanes {
		rtt, err := lane.CheckStatus(p.ctx)
		if err != nil {
			laneProbesTotal.WithLabelValues(lane.ID(), "error").Inc()
			log.WithError(err).WithField("lane", lane.ID()).Debug("Lane probe failed")
			p.tracker.ObserveProbe(lane.ID(), 0, false)
			continue
		}
		laneProbesTotal.WithLabelValues(lane.ID(), "ok").Inc()
		p.tracker.ObserveProbe(lane.ID(), float64(rtt.Milliseconds()), true)
	}
}
