package params

// mainnetOrchestratorConfig are the default values fit for routing against
// mainnet relays.
var mainnetOrchestratorConfig = &OrchestratorConfig{
	ConfigName: "mainnet",

	RecognizedChains:  []string{"eth-mainnet", "eth-goerli", "eth-sepolia"},
	MaxBodyBytes:      131072,
	ThrottlePerSecond: 50,
	ThrottleBurst:     100,
	DecisionCacheSize: 8192,
	StatusURLPrefix:   "/v1/intents/",

	PipelineWorkers:     8,
	SubmitWorkers:       4,
	SweepIntervalMs:     2000,
	ScreenReplayTTLSecs: 900,
	EnrichRetries:       3,
	EnrichBackoffMs:     250,
	ProviderTimeoutMs:   3000,
	MinPriorityFeeWei:   1 * 1e9,
	DeniedAddresses:     nil,

	BundleDeadlineSecs:  30,
	BaseFeeMaxWei:       300 * 1e9,
	PriorityFeeWei:      2 * 1e9,
	GasBumpStepWei:      1 * 1e9,
	GasBumpCapWei:       10 * 1e9,
	ReplacementMaxBumps: 3,

	RelayCallTimeoutMs: 3000,
	ShutdownGraceMs:    5000,

	ProtocolShareBps: 2000,

	IntentCacheSize: 4096,
}

// MainnetConfig returns the default config fit for mainnet usage.
func MainnetConfig() *OrchestratorConfig {
	return mainnetOrchestratorConfig
}

// UseMainnetConfig for kestrel runtime.
func UseMainnetConfig() {
	kestrelConfig = MainnetConfig()
}
