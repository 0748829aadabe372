package relay

import (
	"sort"
	"sync"
)

// HealthTracker holds the process-wide lane health snapshot. The prober (or
// an operator tool) writes it; routing reads an immutable copy. Consumers
// never mutate returned slices.
type HealthTracker struct {
	mu    sync.RWMutex
	lanes map[string]LaneHealth
}

// NewHealthTracker starts with the given lanes, all unproven: present but
// unhealthy until a probe or an explicit update says otherwise.
func NewHealthTracker(configs []LaneConfig) *HealthTracker {
	lanes := make(map[string]LaneHealth, len(configs))
	for _, cfg := range configs {
		lanes[cfg.ID] = LaneHealth{
			ID:            cfg.ID,
			Healthy:       false,
			Authenticated: cfg.AuthSecret != "",
		}
	}
	return &HealthTracker{lanes: lanes}
}

// Snapshot returns a copy of every lane's health, ordered by lane id for
// deterministic iteration.
func (t *HealthTracker) Snapshot() []LaneHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]LaneHealth, 0, len(t.lanes))
	for _, lh := range t.lanes {
		out = append(out, lh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lane returns one lane's health.
func (t *HealthTracker) Lane(id string) (LaneHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lh, ok := t.lanes[id]
	return lh, ok
}

// Update replaces one lane's health snapshot.
func (t *HealthTracker) Update(lh LaneHealth) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lanes[lh.ID] = lh
}

// ObserveProbe folds one probe result into the lane's health. A successful
// probe marks the lane healthy and updates its rtt; a failed probe marks it
// unhealthy.
func (t *HealthTracker) ObserveProbe(id string, rttMs float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lh := t.lanes[id]
	lh.ID = id
	lh.Healthy = ok
	if ok {
		lh.RttMs = rttMs
	}
	t.lanes[id] = lh
}

// ObserveOutcome folds a submission outcome into the lane's running
// inclusion rate and score using an exponential moving average.
func (t *HealthTracker) ObserveOutcome(id string, included bool) {
	const alpha = 0.2
	t.mu.Lock()
	defer t.mu.Unlock()
	lh, ok := t.lanes[id]
	if !ok {
		return
	}
	sample := 0.0
	if included {
		sample = 1.0
	}
	lh.IncRate = lh.IncRate*(1-alpha) + sample*alpha
	lh.Score = lh.IncRate * 10
	t.lanes[id] = lh
}
