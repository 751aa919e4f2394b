package fluxgate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEngineConfig wraps every engine configuration failure.
	ErrInvalidEngineConfig = errors.New("invalid engine configuration")

	// ErrPubSubRequiresRedis is returned when the pubsub reload strategy is
	// selected without a Redis bucket store to subscribe on.
	ErrPubSubRequiresRedis = errors.New("pubsub reload requires a redis bucket store")

	// ErrEngineClosed is returned for calls after Close.
	ErrEngineClosed = errors.New("engine is closed")
)

func NewInvalidEngineConfigError(field, value string) error {
	return fmt.Errorf("%w: invalid %s (%q)", ErrInvalidEngineConfig, field, value)
}
