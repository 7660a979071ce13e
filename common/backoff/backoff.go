// Package backoff works out how long to wait between polls.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 2s
	Max     time.Duration // default: Initial, i.e. no growth
}

// Exponential returns the delay to use after the given attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2 and so on, capped at Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 2 * time.Second
	var maxDelay time.Duration
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		maxDelay = cfg.Max
	}
	if maxDelay < initial {
		maxDelay = initial
	}

	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}
