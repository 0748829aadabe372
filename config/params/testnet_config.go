package params

// TestConfig returns a config tightened for fast unit tests: single workers,
// immediate sweeps, no provider retries.
func TestConfig() *OrchestratorConfig {
	c := MainnetConfig().Copy()
	c.ConfigName = "test"
	c.PipelineWorkers = 2
	c.SubmitWorkers = 1
	c.SweepIntervalMs = 50
	c.ScreenReplayTTLSecs = 2
	c.EnrichRetries = 1
	c.EnrichBackoffMs = 1
	c.ProviderTimeoutMs = 100
	c.BundleDeadlineSecs = 5
	c.RelayCallTimeoutMs = 100
	c.ShutdownGraceMs = 200
	c.ThrottlePerSecond = 1000
	c.ThrottleBurst = 1000
	return c
}

// UseTestConfig for kestrel runtime.
func UseTestConfig() {
	kestrelConfig = TestConfig()
}
