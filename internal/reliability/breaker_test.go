package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBreakerConfig_MatchesSpec(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := NewBreaker(&BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Minute, MaxConcurrentRequests: 1})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
	}
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cb := NewBreaker(&BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond, MaxConcurrentRequests: 1})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewBreaker(&BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond, MaxConcurrentRequests: 1})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom again") })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecuteWithFallback_InvokedOnOpenCircuit(t *testing.T) {
	cb := NewBreaker(&BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Hour, MaxConcurrentRequests: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	invoked := false
	err := cb.ExecuteWithFallback(context.Background(), func(ctx context.Context) error {
		return nil
	}, func(ctx context.Context, err error) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, invoked)
}
