package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

func newTestWrapper(t *testing.T) *ReliabilityWrapper {
	t.Helper()
	w := NewReliabilityWrapper(
		config.CircuitConfig{FailureThreshold: 2, RecoveryTimeout: 30 * time.Second},
		config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		zaptest.NewLogger(t),
	)
	// no real sleeping in tests
	w.retry.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return w
}

func TestReliabilityExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("success passes through", func(t *testing.T) {
		w := newTestWrapper(t)
		calls := 0

		err := w.Execute(ctx, "performance", func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, HealthHealthy, w.Health())
	})

	t.Run("retry happens inside breaker accounting", func(t *testing.T) {
		w := newTestWrapper(t)
		calls := 0

		// fails twice, recovers on the third attempt: the breaker must
		// see one success, not two failures
		err := w.Execute(ctx, "performance", func() error {
			calls++
			if calls < 3 {
				return apperrors.NewBackendError("olap", "transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		stats := w.CircuitStats()["performance"]
		assert.Equal(t, CircuitClosed, stats.State)
		assert.Equal(t, int64(0), stats.ConsecutiveFailures)
		assert.Equal(t, int64(1), stats.TotalSuccesses)
	})

	t.Run("exhausted retries count one breaker failure", func(t *testing.T) {
		w := newTestWrapper(t)
		calls := 0

		err := w.Execute(ctx, "performance", func() error {
			calls++
			return apperrors.NewBackendError("olap", "down")
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, int64(1), w.CircuitStats()["performance"].ConsecutiveFailures)
	})

	t.Run("circuit opens and rejects after repeated failures", func(t *testing.T) {
		w := newTestWrapper(t)
		failing := func() error { return apperrors.NewBackendError("olap", "down") }

		_ = w.Execute(ctx, "anomaly", failing)
		_ = w.Execute(ctx, "anomaly", failing)

		calls := 0
		err := w.Execute(ctx, "anomaly", func() error {
			calls++
			return nil
		})

		assert.Equal(t, 0, calls)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
		assert.Equal(t, HealthDegraded, w.Health())
	})

	t.Run("validation errors are neither retried nor counted", func(t *testing.T) {
		w := newTestWrapper(t)
		calls := 0
		valErr := apperrors.NewValidationError("INVALID_METRIC", "unknown metric")

		err := w.Execute(ctx, "performance", func() error {
			calls++
			return valErr
		})

		assert.Equal(t, valErr, err)
		assert.Equal(t, 1, calls)
		stats := w.CircuitStats()["performance"]
		assert.Equal(t, int64(0), stats.ConsecutiveFailures)
		assert.Equal(t, HealthHealthy, w.Health())
	})

	t.Run("operations are isolated per circuit", func(t *testing.T) {
		w := newTestWrapper(t)
		failing := func() error { return apperrors.NewBackendError("olap", "down") }

		_ = w.Execute(ctx, "cost_optimization", failing)
		_ = w.Execute(ctx, "cost_optimization", failing)
		require.True(t, apperrors.IsType(w.Execute(ctx, "cost_optimization", failing), apperrors.ErrorTypeUnavailable))

		err := w.Execute(ctx, "trend", func() error { return nil })
		assert.NoError(t, err)
	})
}

func TestMonitorHealth(t *testing.T) {
	t.Run("empty monitor is healthy", func(t *testing.T) {
		m := NewExecutionMonitor(NewCircuitBreakerRegistry(config.CircuitConfig{FailureThreshold: 5}))

		assert.Equal(t, HealthHealthy, m.Health())
	})

	t.Run("high recent error rate degrades health", func(t *testing.T) {
		m := NewExecutionMonitor(NewCircuitBreakerRegistry(config.CircuitConfig{FailureThreshold: 100}))

		start := m.RecordStart("performance")
		m.RecordSuccess("performance", start)
		m.RecordFailure("performance", start)
		m.RecordFailure("performance", start)

		assert.Equal(t, HealthDegraded, m.Health())
	})

	t.Run("events age out of the error window", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(config.CircuitConfig{FailureThreshold: 100})
		m := NewExecutionMonitor(registry)

		current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return current }

		m.RecordFailure("performance", current)
		require.Equal(t, HealthDegraded, m.Health())

		current = current.Add(6 * time.Minute)
		assert.Equal(t, HealthHealthy, m.Health())
	})

	t.Run("open circuit degrades regardless of error rate", func(t *testing.T) {
		registry := NewCircuitBreakerRegistry(config.CircuitConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
		m := NewExecutionMonitor(registry)

		breaker := registry.Get("anomaly")
		_ = breaker.Execute(context.Background(), func() error {
			return apperrors.NewBackendError("olap", "down")
		}, apperrors.IsRetryable)

		assert.Equal(t, HealthDegraded, m.Health())
	})
}
