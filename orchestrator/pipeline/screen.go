package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/iface"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	gocache "github.com/patrickmn/go-cache"
)

// ScreenStage is the cheap-first gate: recognized chain, live deadline,
// bounded calldata, and replay detection.
type ScreenStage struct {
	db iface.ReadOnlyDatabase
	// replayMarkers fronts the store's request-hash index so a burst of
	// replays never hits bolt. Values are the owning intent id.
	replayMarkers *gocache.Cache
}

// NewScreenStage builds the screen stage.
func NewScreenStage(db iface.ReadOnlyDatabase) *ScreenStage {
	ttl := time.Duration(params.KestrelConfig().ScreenReplayTTLSecs) * time.Second
	return &ScreenStage{
		db:            db,
		replayMarkers: gocache.New(ttl, 2*ttl),
	}
}

// Name implements Stage.
func (s *ScreenStage) Name() string {
	return "screen"
}

// Target implements Stage.
func (s *ScreenStage) Target() intent.State {
	return intent.Screened
}

// Run implements Stage.
func (s *ScreenStage) Run(ctx context.Context, sc *StageContext) *intent.Reason {
	cfg := params.KestrelConfig()
	p := &sc.Intent.Payload

	if !recognizedChain(cfg.RecognizedChains, p.TargetChain) {
		return intent.ScreenReason(intent.CodeScreenUnknownChain, "unrecognized target chain").
			WithContext("target_chain", p.TargetChain)
	}
	if p.DeadlineMs <= sc.NowMs {
		return intent.ScreenReason(intent.CodeScreenDeadlineExpired, "deadline already passed")
	}
	var calldata uint64
	for _, raw := range p.Txs {
		calldata += uint64(len(raw))
	}
	// The client may declare a bound stricter than the process-wide one.
	limit := cfg.MaxBodyBytes
	if p.MaxCalldataBytes > 0 && uint64(p.MaxCalldataBytes) < limit {
		limit = uint64(p.MaxCalldataBytes)
	}
	if calldata > limit {
		return intent.ScreenReason(intent.CodeScreenBodyTooLarge, "transactions exceed the calldata bound").
			WithContext("limit", strconv.FormatUint(limit, 10))
	}

	if owner, seen := s.replayMarkers.Get(sc.RequestHash); seen && owner.(string) != sc.Intent.ID {
		return intent.ScreenReason(intent.CodeScreenReplaySeen, "request hash already screened").
			WithContext("first_intent_id", owner.(string))
	}
	if owner, seen, err := s.db.SeenRequestHash(ctx, sc.RequestHash); err != nil {
		return intent.InternalReason(intent.CodeInternalError, "store unavailable")
	} else if seen && owner != sc.Intent.ID {
		return intent.ScreenReason(intent.CodeScreenReplaySeen, "request hash already screened").
			WithContext("first_intent_id", owner)
	}
	s.replayMarkers.SetDefault(sc.RequestHash, sc.Intent.ID)
	return nil
}

func recognizedChain(chains []string, chain string) bool {
	for _, c := range chains {
		if c == chain {
			return true
		}
	}
	return false
}
