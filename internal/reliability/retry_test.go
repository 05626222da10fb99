package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_MatchesSpec(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1000*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestRetrier_SucceedsWithoutRetry(t *testing.T) {
	r := New(DefaultConfig())
	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_RetriesRetryableError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxAttempts = 3
	r := New(cfg)

	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_DoesNotRetryPipelineError(t *testing.T) {
	r := New(DefaultConfig())
	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return pipelineerrors.New(pipelineerrors.CodeInvalidQuery, "bad query")
	})
	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_RespectsContextCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Hour
	r := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result := r.Do(ctx, func(ctx context.Context) error {
		return errors.New("timeout")
	})
	require.Error(t, result.Err)
}

func TestDefaultRetryIf_ClassifiesEnhancedError(t *testing.T) {
	retryable := pipelineerrors.NewEnhanced(errors.New("boom"), "vectorstore", "search", pipelineerrors.CategoryRetryable)
	assert.True(t, DefaultRetryIf(retryable))

	permanent := pipelineerrors.NewEnhanced(errors.New("boom"), "vectorstore", "search", pipelineerrors.CategoryPermanent)
	assert.False(t, DefaultRetryIf(permanent))
}
