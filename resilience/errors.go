package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned when a call is short-circuited by an open
	// circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	ErrInvalidRetryConfig   = errors.New("invalid retry configuration")
	ErrInvalidBreakerConfig = errors.New("invalid circuit breaker configuration")
)

func NewCircuitOpenError(name string) error {
	return fmt.Errorf("%w: resource '%s'", ErrCircuitOpen, name)
}

func NewInvalidRetryConfigError(field string, value any) error {
	return fmt.Errorf("%w: invalid %s (%v)", ErrInvalidRetryConfig, field, value)
}

func NewInvalidBreakerConfigError(field string, value int64) error {
	return fmt.Errorf("%w: invalid %s (%d)", ErrInvalidBreakerConfig, field, value)
}
