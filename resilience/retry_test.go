package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate/backends"
)

var errTransient = backends.MarkRetryable(errors.New("connection refused"))

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		Enabled:        true,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		Multiplier:     2.0,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRetryConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultRetryConfig().Validate())
	assert.NoError(t, RetryConfig{Enabled: false}.Validate())

	bad := DefaultRetryConfig()
	bad.MaxAttempts = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRetryConfig)

	bad = DefaultRetryConfig()
	bad.Multiplier = 0.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRetryConfig)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	r := NewRetryer(fastRetryConfig(3), nil)

	calls := 0
	err := r.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()

	r := NewRetryer(fastRetryConfig(3), nil)

	calls := 0
	err := r.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryFatalErrors(t *testing.T) {
	t.Parallel()

	r := NewRetryer(fastRetryConfig(5), nil)
	fatal := errors.New("schema mismatch")

	calls := 0
	err := r.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryDisabledRunsOnce(t *testing.T) {
	t.Parallel()

	r := NewRetryer(RetryConfig{Enabled: false}, nil)

	calls := 0
	err := r.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	config := fastRetryConfig(5)
	config.InitialBackoff = 100 * time.Millisecond
	r := NewRetryer(config, nil)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffCappedAtMax(t *testing.T) {
	t.Parallel()

	r := NewRetryer(RetryConfig{
		Enabled:        true,
		MaxAttempts:    10,
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2.0,
		MaxBackoff:     time.Second,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, r.backoffFor(1))
	assert.Equal(t, 200*time.Millisecond, r.backoffFor(2))
	assert.Equal(t, 800*time.Millisecond, r.backoffFor(4))
	assert.Equal(t, time.Second, r.backoffFor(5))
	assert.Equal(t, time.Second, r.backoffFor(9))
}

func TestDoValue(t *testing.T) {
	t.Parallel()

	r := NewRetryer(fastRetryConfig(3), nil)

	calls := 0
	got, err := DoValue(context.Background(), r, "test", func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
