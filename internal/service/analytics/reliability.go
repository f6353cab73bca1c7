package analytics

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

// ReliabilityWrapper runs a unit of work under one failure policy: bounded
// retry inside, circuit-breaker accounting outside, with every event
// recorded by the execution monitor. The orchestrator wraps the whole
// validate -> fetch -> analyze sequence so a single policy governs the
// request.
type ReliabilityWrapper struct {
	breakers *CircuitBreakerRegistry
	retry    *RetryPolicy
	monitor  *ExecutionMonitor
	logger   *zap.Logger
}

// NewReliabilityWrapper constructs the wrapper from configuration
func NewReliabilityWrapper(circuitCfg config.CircuitConfig, retryCfg config.RetryConfig, logger *zap.Logger) *ReliabilityWrapper {
	breakers := NewCircuitBreakerRegistry(circuitCfg)
	return &ReliabilityWrapper{
		breakers: breakers,
		retry:    NewRetryPolicy(retryCfg),
		monitor:  NewExecutionMonitor(breakers),
		logger:   logger,
	}
}

// Execute runs fn as one unit of work named operation. Retries apply
// before breaker accounting: the breaker sees a single outcome per call,
// after the retry budget is spent. Only dependency failures count against
// the circuit; validation and data-shape outcomes pass through untouched.
func (w *ReliabilityWrapper) Execute(ctx context.Context, operation string, fn func() error) error {
	start := w.monitor.RecordStart(operation)
	breaker := w.breakers.Get(operation)

	err := breaker.Execute(ctx, func() error {
		return w.retry.Do(ctx, fn)
	}, apperrors.IsRetryable)

	switch {
	case err == nil:
		w.monitor.RecordSuccess(operation, start)
	case apperrors.IsType(err, apperrors.ErrorTypeUnavailable):
		w.monitor.RecordRejection(operation, "circuit_open")
		w.logger.Warn("operation rejected by circuit breaker",
			zap.String("operation", operation))
	case apperrors.IsRetryable(err):
		w.monitor.RecordFailure(operation, start)
		w.logger.Error("operation failed after retries",
			zap.String("operation", operation),
			zap.Error(err))
	default:
		// Non-dependency failure: recorded as completed, the circuit
		// only guards the backends
		w.monitor.RecordSuccess(operation, start)
	}

	return err
}

// Health reports the aggregated pipeline health
func (w *ReliabilityWrapper) Health() HealthStatus {
	return w.monitor.Health()
}

// CircuitStats exposes per-operation breaker snapshots
func (w *ReliabilityWrapper) CircuitStats() map[string]CircuitBreakerStats {
	return w.breakers.Stats()
}
