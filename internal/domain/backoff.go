package domain

import (
	"math/rand"
	"time"
)

// RetryBackoff returns the exponential back-off delay for a retry attempt
// with up to 30% positive jitter: base * 2^(attempt-1) * (1 + U[0, 0.3]).
// Attempt is 1-based; values below 1 are treated as 1.
func RetryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		// Guard against overflow for absurd attempt counts.
		if delay > 24*time.Hour {
			delay = 24 * time.Hour
			break
		}
	}

	jitter := 1.0 + rand.Float64()*0.3
	return time.Duration(float64(delay) * jitter)
}
