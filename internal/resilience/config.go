package resilience

import "time"

// Circuit breaker configuration constants
const (
	// Default configuration
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Engine configuration (aggressive: a dead inference server should
	// stop eating pass latency quickly)
	EngineThreshold         = 3
	EngineResetTimeout      = 10 * time.Second
	EngineHalfOpenSuccesses = 2

	// Summarizer configuration (lenient: one call per meeting)
	SummaryThreshold         = 10
	SummaryResetTimeout      = 60 * time.Second
	SummaryHalfOpenSuccesses = 5
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// EngineConfig returns aggressive settings for the per-pass engines.
func EngineConfig() Config {
	return Config{
		Threshold:         EngineThreshold,
		ResetTimeout:      EngineResetTimeout,
		HalfOpenSuccesses: EngineHalfOpenSuccesses,
	}
}

// SummaryConfig returns lenient settings for the summarizer.
func SummaryConfig() Config {
	return Config{
		Threshold:         SummaryThreshold,
		ResetTimeout:      SummaryResetTimeout,
		HalfOpenSuccesses: SummaryHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
