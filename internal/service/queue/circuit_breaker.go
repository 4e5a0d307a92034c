package queue

import (
	"sync"
	"time"

	"github.com/Postroom/postroom/pkg/emailerror"
)

// CircuitBreakerConfig holds configuration for the relay circuit breaker
type CircuitBreakerConfig struct {
	// Threshold is the number of connection failures before opening the circuit
	Threshold int

	// CooldownPeriod is how long to wait before attempting to close the circuit
	CooldownPeriod time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:      5,
		CooldownPeriod: time.Minute,
	}
}

// RelayCircuitBreaker tracks the health of the SMTP relay. Only connection
// level failures trip it; recipient-level SMTP responses mean the relay is
// reachable and never count.
type RelayCircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	lastError   *emailerror.ClassifiedError
	isOpen      bool
}

// NewRelayCircuitBreaker creates a circuit breaker with the given configuration
func NewRelayCircuitBreaker(config CircuitBreakerConfig) *RelayCircuitBreaker {
	if config.Threshold == 0 {
		config.Threshold = 5
	}
	if config.CooldownPeriod == 0 {
		config.CooldownPeriod = time.Minute
	}
	return &RelayCircuitBreaker{config: config}
}

// IsOpen checks if the circuit is open (preventing further sends).
// An open circuit automatically half-closes after the cooldown period.
func (cb *RelayCircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.isOpen && time.Since(cb.lastFailure) > cb.config.CooldownPeriod {
		cb.isOpen = false
		cb.failures = 0
		cb.lastError = nil
	}
	return cb.isOpen
}

// RecordSuccess resets the circuit breaker
func (cb *RelayCircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.lastError = nil
	cb.isOpen = false
}

// RecordFailure counts a connection failure, opening the circuit at the
// threshold. Returns true if the error was counted.
func (cb *RelayCircuitBreaker) RecordFailure(classifiedErr *emailerror.ClassifiedError) bool {
	if classifiedErr == nil || !classifiedErr.IsConnectionError() {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()
	cb.lastError = classifiedErr

	if cb.failures >= cb.config.Threshold {
		cb.isOpen = true
	}
	return true
}

// GetLastError returns the last error that caused a failure
func (cb *RelayCircuitBreaker) GetLastError() *emailerror.ClassifiedError {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

// GetFailures returns the current failure count
func (cb *RelayCircuitBreaker) GetFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// GetConfig returns the circuit breaker configuration
func (cb *RelayCircuitBreaker) GetConfig() CircuitBreakerConfig {
	return cb.config
}
