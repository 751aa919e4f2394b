package resilience

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/fluxgate/fluxgate/backends"
	"github.com/fluxgate/fluxgate/utils"
)

// sleepThreshold below which backoff sleeps ignore context cancellation.
const sleepThreshold = 10 * time.Millisecond

// RetryConfig holds configuration for the retry executor.
type RetryConfig struct {
	Enabled        bool
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns a retry config with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:        true,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2.0,
		MaxBackoff:     2 * time.Second,
	}
}

func (c RetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts < 1 {
		return NewInvalidRetryConfigError("maxAttempts", c.MaxAttempts)
	}
	if c.Multiplier < 1.0 {
		return NewInvalidRetryConfigError("multiplier", c.Multiplier)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return NewInvalidRetryConfigError("backoff", c.InitialBackoff)
	}
	return nil
}

// Retryer executes operations with bounded exponential backoff. Only errors
// tagged retryable (connectivity, timeouts) are retried; validation, schema
// and permission failures surface immediately.
type Retryer struct {
	config RetryConfig
	logger *slog.Logger
}

func NewRetryer(config RetryConfig, logger *slog.Logger) *Retryer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{config: config, logger: logger}
}

// Do runs fn up to MaxAttempts times. The returned error is the last one
// observed.
func (r *Retryer) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if r == nil || !r.config.Enabled {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !backends.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		backoff := r.backoffFor(attempt)
		r.logger.Debug("retrying after transient failure",
			"op", op, "attempt", attempt, "backoff", backoff, "error", lastErr)
		if err := utils.SleepOrWait(ctx, backoff, sleepThreshold); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// backoffFor returns min(maxBackoff, initialBackoff * multiplier^(attempt-1)).
func (r *Retryer) backoffFor(attempt int) time.Duration {
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if r.config.MaxBackoff > 0 && backoff > float64(r.config.MaxBackoff) {
		return r.config.MaxBackoff
	}
	return time.Duration(backoff)
}

// DoValue is Retryer.Do for operations that produce a value.
func DoValue[T any](ctx context.Context, r *Retryer, op string, fn func(context.Context) (T, error)) (T, error) {
	var value T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		var innerErr error
		value, innerErr = fn(ctx)
		return innerErr
	})
	return value, err
}
