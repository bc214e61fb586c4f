package dbclient

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.2,
	}
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func(ctx context.Context) error

// RetryWithBackoff runs operation until it succeeds, MaxAttempts is reached or
// ctx is done. Wrap an error with backoff.Permanent to stop early.
func RetryWithBackoff(ctx context.Context, cfg *RetryConfig, operation RetryableOperation, logger zerolog.Logger) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.BaseDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.Multiplier = cfg.BackoffFactor
	exp.RandomizationFactor = cfg.Jitter
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return operation(ctx)
	}, policy, func(err error, delay time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("Operation failed, retrying")
	})
	if err == nil {
		if attempt > 1 {
			logger.Info().Int("attempt", attempt).Msg("Operation succeeded after retry")
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return errors.New(ErrRetryExhausted, "operation failed after retry attempts", err).
		AddContext("attempts", strconv.Itoa(attempt))
}
