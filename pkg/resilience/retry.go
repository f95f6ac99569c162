// Package resilience implements the dual-budget retry engine and the
// per-service circuit breaker that every outbound call in the intel core is
// wrapped by.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/itsneelabh/intelcore/pkg/intelerrors"
)

// RetryBudgets bounds the two independent attempt counters kept by Run: one
// for rate-limit failures, one for every other retryable failure. Spending
// one budget never consumes the other, so a single transient 5xx can't eat
// the attempts a later 429 needs.
type RetryBudgets struct {
	APIBudget       int
	RateLimitBudget int
}

// DefaultRetryBudgets matches spec §4.1: 3 attempts for general API
// failures, 5 for rate-limit failures.
func DefaultRetryBudgets() RetryBudgets {
	return RetryBudgets{APIBudget: 3, RateLimitBudget: 5}
}

// BackoffConfig configures one of the two independent backoff curves.
type BackoffConfig struct {
	Base          time.Duration
	Max           time.Duration
	JitterEnabled bool
}

// RetryConfig bundles the budgets and backoff curves used by Run.
type RetryConfig struct {
	Budgets RetryBudgets
	// Other backs off general API failures.
	Other BackoffConfig
	// RateLimit backs off 429-shaped failures.
	RateLimit BackoffConfig
	// Rand is used to sample jitter; defaults to a package-level source
	// when nil so callers needn't thread one through.
	Rand *rand.Rand
}

// DefaultRetryConfig matches the defaults named in spec §4.1:
// base=1s/max=30s for general failures, rlBase=2s/rlMax=32s for rate limits.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Budgets: DefaultRetryBudgets(),
		Other: BackoffConfig{
			Base: time.Second, Max: 30 * time.Second, JitterEnabled: true,
		},
		RateLimit: BackoffConfig{
			Base: 2 * time.Second, Max: 32 * time.Second, JitterEnabled: true,
		},
	}
}

// RetryAfterer is implemented by errors that carry a service-supplied
// retry delay (RateLimitError does).
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// RetryAfterFrom returns the service-supplied delay carried by err and true
// when err itself implements RetryAfterer; otherwise it returns 0, false.
func RetryAfterFrom(err error) (time.Duration, bool) {
	if rl, ok := err.(RetryAfterer); ok {
		return rl.RetryAfter(), true
	}
	return 0, false
}

// Run executes attempt repeatedly until it succeeds, returns a
// non-retryable error, exhausts its budgets, or ctx is cancelled.
//
// Each failure is classified: rate-limit failures (intelerrors.IsRateLimit)
// consume the RateLimitBudget and back off along the RateLimit curve;
// other retryable failures (intelerrors.IsRetryable) consume the APIBudget
// and back off along the Other curve. Non-retryable errors propagate
// immediately without consuming either budget.
func Run(ctx context.Context, cfg *RetryConfig, attempt func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	apiAttempts := 0
	rlAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt()
		if err == nil {
			return nil
		}

		if !intelerrors.IsRetryable(err) {
			return err
		}

		var delay time.Duration
		if intelerrors.IsRateLimit(err) {
			if rlAttempts >= cfg.Budgets.RateLimitBudget {
				return err
			}
			rlAttempts++
			delay = backoffDelay(cfg.RateLimit, rlAttempts, rng)
			if retryAfter, ok := RetryAfterFrom(err); ok && retryAfter > delay {
				delay = retryAfter
			}
		} else {
			if apiAttempts >= cfg.Budgets.APIBudget {
				return err
			}
			apiAttempts++
			delay = backoffDelay(cfg.Other, apiAttempts, rng)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func backoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	delay := cfg.Base << uint(attempt-1) // Base * 2^(attempt-1)
	if delay > cfg.Max || delay <= 0 {
		delay = cfg.Max
	}
	if cfg.JitterEnabled {
		lo := float64(delay) * 0.5
		hi := float64(delay) * 1.5
		delay = time.Duration(lo + rng.Float64()*(hi-lo))
	}
	return delay
}
