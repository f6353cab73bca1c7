package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

// CircuitState is the breaker state machine position
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerStats is a point-in-time snapshot of one breaker
type CircuitBreakerStats struct {
	Operation           string       `json:"operation"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int64        `json:"consecutive_failures"`
	TotalFailures       int64        `json:"total_failures"`
	TotalSuccesses      int64        `json:"total_successes"`
	LastFailureTime     time.Time    `json:"last_failure_time"`
}

// circuitBreaker guards one named operation. It opens after a run of
// consecutive failures, rejects while open, and admits exactly one probing
// call after the recovery timeout. State transitions are CAS-guarded so
// concurrent callers never race the Closed->Open edge.
type circuitBreaker struct {
	operation        string
	failureThreshold int64
	recoveryTimeout  time.Duration

	state           int32 // atomic CircuitState
	consecutiveFail int64 // atomic
	totalFailures   int64 // atomic
	totalSuccesses  int64 // atomic
	lastFailureTime int64 // atomic, unix nano

	now func() time.Time
}

func newCircuitBreaker(operation string, failureThreshold int, recoveryTimeout time.Duration) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &circuitBreaker{
		operation:        operation,
		failureThreshold: int64(failureThreshold),
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Execute runs fn under the breaker. Rejections return a circuit-open
// error without invoking fn. countFailure decides whether an error from fn
// counts against the breaker; errors it rejects (validation and the like)
// pass through without touching the failure counter.
func (cb *circuitBreaker) Execute(ctx context.Context, fn func() error, countFailure func(error) bool) error {
	if !cb.allowRequest() {
		return apperrors.NewCircuitOpenError(cb.operation)
	}

	err := fn()
	if err != nil && countFailure(err) {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return err
}

// State returns the current circuit state
func (cb *circuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt32(&cb.state))
}

// Stats returns a snapshot of the breaker's counters
func (cb *circuitBreaker) Stats() CircuitBreakerStats {
	return CircuitBreakerStats{
		Operation:           cb.operation,
		State:               cb.State(),
		ConsecutiveFailures: atomic.LoadInt64(&cb.consecutiveFail),
		TotalFailures:       atomic.LoadInt64(&cb.totalFailures),
		TotalSuccesses:      atomic.LoadInt64(&cb.totalSuccesses),
		LastFailureTime:     time.Unix(0, atomic.LoadInt64(&cb.lastFailureTime)),
	}
}

// Reset forces the breaker back to closed with counters cleared
func (cb *circuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(CircuitClosed))
	atomic.StoreInt64(&cb.consecutiveFail, 0)
	atomic.StoreInt64(&cb.lastFailureTime, 0)
}

// allowRequest decides whether a call may proceed. In the open state the
// caller that wins the CAS to half-open becomes the single trial call;
// everyone else is rejected until the trial resolves.
func (cb *circuitBreaker) allowRequest() bool {
	switch CircuitState(atomic.LoadInt32(&cb.state)) {
	case CircuitClosed:
		return true

	case CircuitOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailureTime)
		if cb.now().Sub(time.Unix(0, lastFailure)) >= cb.recoveryTimeout {
			return atomic.CompareAndSwapInt32(&cb.state, int32(CircuitOpen), int32(CircuitHalfOpen))
		}
		return false

	default: // half-open, trial call in flight
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	atomic.AddInt64(&cb.totalSuccesses, 1)
	atomic.StoreInt64(&cb.consecutiveFail, 0)

	// A successful trial closes the circuit
	atomic.CompareAndSwapInt32(&cb.state, int32(CircuitHalfOpen), int32(CircuitClosed))
}

func (cb *circuitBreaker) recordFailure() {
	atomic.AddInt64(&cb.totalFailures, 1)
	atomic.StoreInt64(&cb.lastFailureTime, cb.now().UnixNano())

	// A failed trial reopens the circuit and restarts the timer
	if atomic.CompareAndSwapInt32(&cb.state, int32(CircuitHalfOpen), int32(CircuitOpen)) {
		atomic.StoreInt64(&cb.consecutiveFail, cb.failureThreshold)
		return
	}

	failures := atomic.AddInt64(&cb.consecutiveFail, 1)
	if failures >= cb.failureThreshold {
		atomic.CompareAndSwapInt32(&cb.state, int32(CircuitClosed), int32(CircuitOpen))
	}
}

// CircuitBreakerRegistry owns one breaker per operation name. It is an
// explicitly constructed, injectable service object; reliability state is
// shared by every concurrent caller of the same operation.
type CircuitBreakerRegistry struct {
	cfg      config.CircuitConfig
	mu       sync.RWMutex
	breakers map[string]*circuitBreaker
}

// NewCircuitBreakerRegistry creates the registry from configuration
func NewCircuitBreakerRegistry(cfg config.CircuitConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*circuitBreaker),
	}
}

// Get returns the breaker for an operation, creating it on first use
func (r *CircuitBreakerRegistry) Get(operation string) *circuitBreaker {
	r.mu.RLock()
	breaker, exists := r.breakers[operation]
	r.mu.RUnlock()
	if exists {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock
	if breaker, exists := r.breakers[operation]; exists {
		return breaker
	}

	breaker = newCircuitBreaker(operation,
		r.cfg.FailureThresholdFor(operation),
		r.cfg.RecoveryTimeout)
	r.breakers[operation] = breaker
	return breaker
}

// States returns the current state of every known breaker
func (r *CircuitBreakerRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for op, breaker := range r.breakers {
		states[op] = breaker.State()
	}
	return states
}

// Stats returns snapshots for every known breaker
func (r *CircuitBreakerRegistry) Stats() map[string]CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats, len(r.breakers))
	for op, breaker := range r.breakers {
		stats[op] = breaker.Stats()
	}
	return stats
}
