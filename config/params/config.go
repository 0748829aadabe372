// Package params defines important configuration options to be used when
// running the kestrel orchestrator.
package params

import (
	"github.com/mohae/deepcopy"
)

// OrchestratorConfig contains durable tuning values for the intent pipeline,
// bundle assembly, and relay fan-out. Values that must be hot updatable at
// runtime live in the tuning daemon instead.
type OrchestratorConfig struct {
	ConfigName string `yaml:"CONFIG_NAME"` // ConfigName for allowing an easy identification of the config.

	// Submission boundary values.
	RecognizedChains  []string `yaml:"RECOGNIZED_CHAINS"`   // RecognizedChains enumerates target_chain values the screen stage accepts.
	MaxBodyBytes      uint64   `yaml:"MAX_BODY_BYTES"`      // MaxBodyBytes bounds the canonicalized submission body.
	ThrottlePerSecond int64    `yaml:"THROTTLE_PER_SECOND"` // ThrottlePerSecond is the sustained submission rate before QUEUE_THROTTLED.
	ThrottleBurst     int64    `yaml:"THROTTLE_BURST"`      // ThrottleBurst is the leaky bucket capacity.
	DecisionCacheSize int      `yaml:"DECISION_CACHE_SIZE"` // DecisionCacheSize caps the in-memory idempotent decision cache.
	StatusURLPrefix   string   `yaml:"STATUS_URL_PREFIX"`   // StatusURLPrefix prefixes intent ids in synthesized status URLs.

	// Pipeline values.
	PipelineWorkers     int      `yaml:"PIPELINE_WORKERS"`       // PipelineWorkers bounds concurrent staged intents.
	SubmitWorkers       int      `yaml:"SUBMIT_WORKERS"`         // SubmitWorkers bounds concurrent bundle submissions.
	SweepIntervalMs     uint64   `yaml:"SWEEP_INTERVAL_MS"`      // SweepIntervalMs is the crash recovery re-queue cadence.
	ScreenReplayTTLSecs uint64   `yaml:"SCREEN_REPLAY_TTL_SECS"` // ScreenReplayTTLSecs bounds the in-memory replay marker cache.
	EnrichRetries       int      `yaml:"ENRICH_RETRIES"`         // EnrichRetries bounds provider retries before NETWORK_PROVIDER_UNAVAILABLE.
	EnrichBackoffMs     uint64   `yaml:"ENRICH_BACKOFF_MS"`      // EnrichBackoffMs is the base backoff between provider retries.
	ProviderTimeoutMs   uint64   `yaml:"PROVIDER_TIMEOUT_MS"`    // ProviderTimeoutMs is the per-call ceiling for enrichment providers.
	MinPriorityFeeWei   uint64   `yaml:"MIN_PRIORITY_FEE_WEI"`   // MinPriorityFeeWei is the policy stage fee floor.
	DeniedAddresses     []string `yaml:"DENIED_ADDRESSES"`       // DeniedAddresses rejects intents touching these recipients.

	// Bundle assembly values.
	BundleDeadlineSecs  uint64 `yaml:"BUNDLE_DEADLINE_SECS"`  // BundleDeadlineSecs sets plan deadline = now + this.
	BaseFeeMaxWei       uint64 `yaml:"BASE_FEE_MAX_WEI"`      // BaseFeeMaxWei caps the bundle gas policy base fee.
	PriorityFeeWei      uint64 `yaml:"PRIORITY_FEE_WEI"`      // PriorityFeeWei is the default priority fee for templates.
	GasBumpStepWei      uint64 `yaml:"GAS_BUMP_STEP_WEI"`     // GasBumpStepWei is the per-replacement fee escalation step.
	GasBumpCapWei       uint64 `yaml:"GAS_BUMP_CAP_WEI"`      // GasBumpCapWei caps total fee escalation; bump step clamps to it.
	ReplacementMaxBumps uint64 `yaml:"REPLACEMENT_MAX_BUMPS"` // ReplacementMaxBumps bounds nonce replacement attempts.

	// Relay fan-out values.
	RelayCallTimeoutMs uint64 `yaml:"RELAY_CALL_TIMEOUT_MS"` // RelayCallTimeoutMs is the per-lane submission ceiling.
	ShutdownGraceMs    uint64 `yaml:"SHUTDOWN_GRACE_MS"`     // ShutdownGraceMs bounds worker pool draining on shutdown.

	// Settlement values.
	ProtocolShareBps uint64 `yaml:"PROTOCOL_SHARE_BPS"` // ProtocolShareBps is the protocol's cut of net profit in basis points.

	// Store values.
	IntentCacheSize int64 `yaml:"INTENT_CACHE_SIZE"` // IntentCacheSize caps the hot intent row cache.
}

var kestrelConfig = MainnetConfig()

// KestrelConfig retrieves the orchestrator config.
func KestrelConfig() *OrchestratorConfig {
	return kestrelConfig
}

// OverrideKestrelConfig by replacing the config. The preferred pattern is to
// call KestrelConfig(), change the specific parameters, and then call
// OverrideKestrelConfig(c). Any subsequent calls to params.KestrelConfig()
// will return this new configuration.
func OverrideKestrelConfig(c *OrchestratorConfig) {
	kestrelConfig = c
}

// Copy returns a copy of the config object.
func (c *OrchestratorConfig) Copy() *OrchestratorConfig {
	config, ok := deepcopy.Copy(*c).(OrchestratorConfig)
	if !ok {
		config = *kestrelConfig
	}
	return &config
}
