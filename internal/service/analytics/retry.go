package analytics

import (
	"context"
	"time"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

// RetryPolicy retries transient backend failures with capped exponential
// backoff. Validation and computation failures are never retried.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy builds the policy from configuration
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		sleep:       sleepContext,
	}
}

// Do runs fn up to maxAttempts times. Only retryable (backend) errors
// trigger another attempt; the delay doubles per attempt up to the cap. A
// canceled context stops the loop immediately.
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := p.sleep(ctx, p.delayFor(attempt-1)); sleepErr != nil {
				return err
			}
		}

		err = fn()
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

// delayFor computes min(base * 2^attempt, max)
func (p *RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.baseDelay << uint(attempt)
	if delay > p.maxDelay || delay <= 0 {
		return p.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
