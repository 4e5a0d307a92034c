package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// APIKeyRateLimiter manages send rate limits per API key.
// Each key has its own limiter based on its configured RateLimitPerSecond.
type APIKeyRateLimiter struct {
	limiters sync.Map // map[apiKeyID]*rate.Limiter
}

// NewAPIKeyRateLimiter creates a new APIKeyRateLimiter
func NewAPIKeyRateLimiter() *APIKeyRateLimiter {
	return &APIKeyRateLimiter{}
}

// GetOrCreateLimiter returns a rate limiter for the API key, creating one if
// needed. The limiter is updated if the configured rate has changed.
// A rate of zero or below means unlimited.
func (rl *APIKeyRateLimiter) GetOrCreateLimiter(apiKeyID string, ratePerSecond int) *rate.Limiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}

	if existing, ok := rl.limiters.Load(apiKeyID); ok {
		limiter := existing.(*rate.Limiter)
		// Update rate if changed (SetLimit is thread-safe)
		if limiter.Limit() != limit {
			limiter.SetLimit(limit)
		}
		return limiter
	}

	// Burst of 1: at most one send immediately, the rest wait their turn
	limiter := rate.NewLimiter(limit, 1)
	actual, _ := rl.limiters.LoadOrStore(apiKeyID, limiter)
	return actual.(*rate.Limiter)
}

// Wait blocks until the key's rate limiter allows a send.
// Returns an error if the context is cancelled.
func (rl *APIKeyRateLimiter) Wait(ctx context.Context, apiKeyID string, ratePerSecond int) error {
	limiter := rl.GetOrCreateLimiter(apiKeyID, ratePerSecond)
	return limiter.Wait(ctx)
}

// Allow checks if sending is allowed immediately without blocking
func (rl *APIKeyRateLimiter) Allow(apiKeyID string, ratePerSecond int) bool {
	limiter := rl.GetOrCreateLimiter(apiKeyID, ratePerSecond)
	return limiter.Allow()
}

// Clear removes all rate limiters (useful for testing or shutdown)
func (rl *APIKeyRateLimiter) Clear() {
	rl.limiters.Range(func(key, value interface{}) bool {
		rl.limiters.Delete(key)
		return true
	})
}
