package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastBackoff(int) time.Duration { return time.Millisecond }

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, Backoff: fastBackoff}, zap.NewNop(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	attempts := 0

	err := Do(context.Background(), Policy{MaxRetries: 3, Backoff: fastBackoff}, zap.NewNop(), func() error {
		attempts++
		return transient
	})

	require.Error(t, err)
	// The first run is not a retry, so three retries mean four runs.
	assert.Equal(t, 4, attempts)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, transient)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("constraint violation")
	attempts := 0

	err := Do(context.Background(), Policy{
		MaxRetries: 5,
		Retryable:  func(err error) bool { return !errors.Is(err, fatal) },
		Backoff:    fastBackoff,
	}, zap.NewNop(), func() error {
		attempts++
		return fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, Policy{MaxRetries: 3, Backoff: fastBackoff}, zap.NewNop(), func() error {
		attempts++
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestJitterBackoff_ScalesWithAttempt(t *testing.T) {
	backoff := JitterBackoff(10*time.Millisecond, 20*time.Millisecond)

	for attempt := 1; attempt <= 3; attempt++ {
		wait := backoff(attempt)
		min := 10 * time.Millisecond * time.Duration(attempt)
		max := 20 * time.Millisecond * time.Duration(attempt)
		assert.GreaterOrEqual(t, wait, min)
		assert.LessOrEqual(t, wait, max)
	}
}
