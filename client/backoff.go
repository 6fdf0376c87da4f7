package client

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures reconnect retry behavior.
type BackoffConfig struct {
	// Base is the un-jittered delay before the first retry.
	Base time.Duration
	// Cap is the maximum un-jittered delay between retries.
	Cap time.Duration
	// MaxAttempts bounds how many reconnect attempts are made.
	MaxAttempts int

	// Rand overrides the jitter source; nil uses math/rand. Tests inject a
	// deterministic source.
	Rand func() float64
}

// DefaultBackoffConfig returns a sensible default reconnect configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:        500 * time.Millisecond,
		Cap:         10 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay computes the jittered backoff for an attempt (1-based):
// min(base·2^(attempt-1), cap), scaled to 50–100% of that value.
func (cfg BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(cfg.Base) * math.Pow(2, float64(attempt-1))
	if backoff > float64(cfg.Cap) {
		backoff = float64(cfg.Cap)
	}

	random := cfg.Rand
	if random == nil {
		random = rand.Float64
	}
	return time.Duration(backoff * (0.5 + 0.5*random()))
}
