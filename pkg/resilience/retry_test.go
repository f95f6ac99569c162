package resilience

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/intelcore/pkg/intelerrors"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		Budgets: RetryBudgets{APIBudget: 3, RateLimitBudget: 3},
		Other:   BackoffConfig{Base: time.Millisecond, Max: 5 * time.Millisecond, JitterEnabled: false},
		RateLimit: BackoffConfig{
			Base: time.Millisecond, Max: 5 * time.Millisecond, JitterEnabled: false,
		},
		Rand: rand.New(rand.NewSource(1)),
	}
}

func TestRun_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_RetriesAPIFailureUntilBudgetExhausted(t *testing.T) {
	calls := 0
	apiErr := intelerrors.NewAPIError("test", "", "svc", "/x", 500, time.Millisecond, "boom")
	err := Run(context.Background(), fastRetryConfig(), func() error {
		calls++
		return apiErr
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // 1 initial + 3 budgeted retries
}

func TestRun_NonRetryableErrorReturnsImmediately(t *testing.T) {
	calls := 0
	validationErr := intelerrors.NewValidationError("test", "", "field", "string", "int", "type mismatch")
	err := Run(context.Background(), fastRetryConfig(), func() error {
		calls++
		return validationErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_RateLimitBudgetIsIndependentOfAPIBudget(t *testing.T) {
	calls := 0
	rlErr := intelerrors.NewRateLimitError("test", "", "svc", time.Millisecond)
	cfg := fastRetryConfig()
	cfg.Budgets.APIBudget = 0
	err := Run(context.Background(), cfg, func() error {
		calls++
		return rlErr
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // budgeted independently from APIBudget
}

func TestRun_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Run(ctx, fastRetryConfig(), func() error {
		calls++
		return intelerrors.NewAPIError("test", "", "svc", "/x", 500, 0, "boom")
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestRun_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	apiErr := intelerrors.NewAPIError("test", "", "svc", "/x", 500, time.Millisecond, "boom")
	err := Run(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 2 {
			return apiErr
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryAfterFrom(t *testing.T) {
	rlErr := intelerrors.NewRateLimitError("test", "", "svc", 7*time.Second)
	delay, ok := RetryAfterFrom(rlErr)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, delay)

	_, ok = RetryAfterFrom(errors.New("plain"))
	assert.False(t, ok)
}
