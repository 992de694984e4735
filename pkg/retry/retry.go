package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrMaxRetriesExceeded wraps the last error once every attempt has
// been used up.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls how an operation is retried. Retryable decides
// whether an error is worth another attempt; Backoff returns the wait
// before the given 1-based attempt is re-run.
type Policy struct {
	MaxRetries int
	Retryable  func(error) bool
	Backoff    func(attempt int) time.Duration
}

// JitterBackoff returns a backoff function drawing uniformly from
// [min, max] and scaling linearly with the attempt number.
func JitterBackoff(min, max time.Duration) func(int) time.Duration {
	span := int64(max - min)
	return func(attempt int) time.Duration {
		base := min + time.Duration(rand.Int63n(span+1))
		return base * time.Duration(attempt)
	}
}

// Do runs op, retrying per the policy. The first execution does not
// count as a retry: MaxRetries=3 allows four runs in total.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op()
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retries", zap.Int("attempt", attempt))
			}
			return nil
		}

		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}

		if attempt >= policy.MaxRetries {
			logger.Warn("Max retries exceeded",
				zap.Error(lastErr),
				zap.Int("attempts", attempt+1))
			break
		}

		wait := policy.Backoff(attempt + 1)
		logger.Debug("Retrying operation",
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}
