// Package pipeline runs accepted intents through the ordered stages
// Screen, Validate, Enrich, Policy. Each stage either advances the intent to
// its target state or rejects it with a stable reason code.
package pipeline

import (
	"context"

	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "pipeline")

// StageContext carries one intent through the stage sequence. Stages may
// write Sim; everything else is read-only.
type StageContext struct {
	Intent      *intent.Intent
	CorrID      string
	RequestHash string
	NowMs       int64

	// Sim is populated by the enrich stage and persisted by the service.
	Sim *bundle.SimOutputs
}

// Stage is one step of the pipeline. A nil Reason from Run advances the
// intent to Target; a non-nil Reason rejects it.
type Stage interface {
	Name() string
	Target() intent.State
	Run(ctx context.Context, sc *StageContext) *intent.Reason
}
