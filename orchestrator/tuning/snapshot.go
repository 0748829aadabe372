// Package tuning holds the hot-updatable numeric tuning consumed by the
// capital guard, the anti-MEV mitigator, and the relay router. A daemon owns
// an immutable snapshot behind an atomic pointer; consumers pull the latest
// snapshot at the start of each decision and are never called back into
// synchronously.
package tuning

import (
	"fmt"
	"sort"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
)

// Capital tuning. Caps and losses are wei expressed as float64: the guard is
// a risk precheck, not an accounting ledger, so float precision is enough.
type Capital struct {
	Kill         bool
	AccountCap   float64
	StrategyCap  float64
	DailyLossCap float64
}

// AntiMEV tuning.
type AntiMEV struct {
	JitterMaxMs int64
	EpochMs     int64
	DecoyPct    float64
}

// Router tuning for the relay backoff series.
type Router struct {
	BaseMs    int64
	Factor    float64
	MaxMs     int64
	JitterPct int64
}

// Snapshot is one immutable tuning generation. Never mutate a snapshot;
// build a new one and swap.
type Snapshot struct {
	Capital Capital
	AntiMEV AntiMEV
	Router  Router
}

// DefaultSnapshot returns the environment defaults applied before any tuning
// file or override.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Capital: Capital{
			Kill:         false,
			AccountCap:   5e18,
			StrategyCap:  2e18,
			DailyLossCap: 5e17,
		},
		AntiMEV: AntiMEV{
			JitterMaxMs: 150,
			EpochMs:     2000,
			DecoyPct:    0,
		},
		Router: Router{
			BaseMs:    100,
			Factor:    2,
			MaxMs:     2000,
			JitterPct: 20,
		},
	}
}

// Copy returns a new snapshot with the same values.
func (s *Snapshot) Copy() *Snapshot {
	cp := *s
	return &cp
}

// apply sets one recognized dotted key on the snapshot copy.
func (s *Snapshot) apply(key string, value interface{}) error {
	switch key {
	case "capital.kill":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("key %q wants bool, got %T", key, value)
		}
		s.Capital.Kill = b
	case "capital.accountCap":
		return setFloat(&s.Capital.AccountCap, key, value, false)
	case "capital.strategyCap":
		return setFloat(&s.Capital.StrategyCap, key, value, false)
	case "capital.dailyLossCap":
		return setFloat(&s.Capital.DailyLossCap, key, value, false)
	case "antimev.jitterMaxMs":
		return setInt(&s.AntiMEV.JitterMaxMs, key, value, 0)
	case "antimev.epochMs":
		// The salt epoch is never finer than a second.
		return setInt(&s.AntiMEV.EpochMs, key, value, 1000)
	case "antimev.decoyPct":
		return setFloat(&s.AntiMEV.DecoyPct, key, value, false)
	case "router.baseMs":
		return setInt(&s.Router.BaseMs, key, value, 1)
	case "router.factor":
		return setFloat(&s.Router.Factor, key, value, true)
	case "router.maxMs":
		return setInt(&s.Router.MaxMs, key, value, 1)
	case "router.jitterPct":
		if err := setInt(&s.Router.JitterPct, key, value, 0); err != nil {
			return err
		}
		if s.Router.JitterPct > 100 {
			s.Router.JitterPct = 100
		}
	default:
		return intent.ClientReason(intent.CodeClientBadRequest, "unrecognized tuning key").WithContext("key", key)
	}
	return nil
}

// RecognizedKeys lists the accepted tuning keys, sorted.
func RecognizedKeys() []string {
	keys := []string{
		"capital.kill", "capital.accountCap", "capital.strategyCap", "capital.dailyLossCap",
		"antimev.jitterMaxMs", "antimev.epochMs", "antimev.decoyPct",
		"router.baseMs", "router.factor", "router.maxMs", "router.jitterPct",
	}
	sort.Strings(keys)
	return keys
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func setFloat(dst *float64, key string, value interface{}, requirePositive bool) error {
	f, ok := asFloat(value)
	if !ok {
		return fmt.Errorf("key %q wants number, got %T", key, value)
	}
	if f < 0 || (requirePositive && f <= 0) {
		return fmt.Errorf("key %q out of range: %v", key, f)
	}
	*dst = f
	return nil
}

func setInt(dst *int64, key string, value interface{}, min int64) error {
	f, ok := asFloat(value)
	if !ok {
		return fmt.Errorf("key %q wants integer, got %T", key, value)
	}
	n := int64(f)
	if n < min {
		n = min
	}
	*dst = n
	return nil
}
