package reload

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReloadConfig = errors.New("invalid reload configuration")

	// ErrSubscriptionClosed is returned when the pub/sub message channel
	// closes underneath an active subscription.
	ErrSubscriptionClosed = errors.New("rule reload subscription closed")
)

func NewInvalidReloadConfigError(field string, value int64) error {
	return fmt.Errorf("%w: invalid %s (%d)", ErrInvalidReloadConfig, field, value)
}
