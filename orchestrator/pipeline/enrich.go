package pipeline

import (
	"context"
	"math/big"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider supplies chain context for enrichment. *ethclient.Client
// satisfies it.
type Provider interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// EnrichStage attaches the fee and nonce picture to the intent. With no
// provider configured it falls back to the values declared in the payload's
// own transactions, so the pipeline runs without an RPC endpoint.
type EnrichStage struct {
	provider Provider
}

// NewEnrichStage builds the enrich stage; provider may be nil.
func NewEnrichStage(provider Provider) *EnrichStage {
	return &EnrichStage{provider: provider}
}

// Name implements Stage.
func (e *EnrichStage) Name() string {
	return "enrich"
}

// Target implements Stage.
func (e *EnrichStage) Target() intent.State {
	return intent.Enriched
}

// Run implements Stage.
func (e *EnrichStage) Run(ctx context.Context, sc *StageContext) *intent.Reason {
	if e.provider == nil {
		sc.Sim = declaredOutputs(&sc.Intent.Payload)
		return nil
	}

	cfg := params.KestrelConfig()
	var sim *bundle.SimOutputs
	var lastErr error
	backoff := time.Duration(cfg.EnrichBackoffMs) * time.Millisecond
	for attempt := 0; attempt <= cfg.EnrichRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return intent.InternalReason(intent.CodeShutdown, "enrichment cancelled")
			}
		}
		sim, lastErr = e.query(ctx, &sc.Intent.Payload)
		if lastErr == nil {
			sc.Sim = sim
			return nil
		}
		log.WithError(lastErr).WithField("attempt", attempt).Debug("Provider query failed")
	}
	return intent.NetworkReason(intent.CodeNetworkProviderUnavailable, "provider unavailable after retries").
		WithContext("error", lastErr.Error())
}

func (e *EnrichStage) query(ctx context.Context, p *intent.Payload) (*bundle.SimOutputs, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(params.KestrelConfig().ProviderTimeoutMs)*time.Millisecond)
	defer cancel()

	tip, err := e.provider.SuggestGasTipCap(callCtx)
	if err != nil {
		return nil, err
	}
	head, err := e.provider.HeaderByNumber(callCtx, nil)
	if err != nil {
		return nil, err
	}
	sim := &bundle.SimOutputs{TipWei: tip.Uint64()}
	if head.BaseFee != nil {
		sim.BaseFeeWei = head.BaseFee.Uint64()
	}
	if sender, ok := firstSender(p); ok {
		nonce, err := e.provider.PendingNonceAt(callCtx, sender)
		if err != nil {
			return nil, err
		}
		sim.NonceHint = nonce
	}
	return sim, nil
}

// declaredOutputs derives the sim picture from the payload itself.
func declaredOutputs(p *intent.Payload) *bundle.SimOutputs {
	sim := &bundle.SimOutputs{}
	if len(p.Txs) == 0 {
		return sim
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(p.Txs[0]); err != nil {
		return sim
	}
	sim.TipWei = tx.GasTipCap().Uint64()
	sim.NonceHint = tx.Nonce()
	return sim
}

// firstSender recovers the sender of the first enclosed transaction.
func firstSender(p *intent.Payload) (common.Address, bool) {
	if len(p.Txs) == 0 {
		return common.Address{}, false
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(p.Txs[0]); err != nil {
		return common.Address{}, false
	}
	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Address{}, false
	}
	return sender, true
}
