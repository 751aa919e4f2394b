package redis

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionFailed = errors.New("failed to connect to redis")
	ErrMalformedReply   = errors.New("malformed script reply")
)

func NewConnectionFailedError(addr string, err error) error {
	return fmt.Errorf("%w at %s: %w", ErrConnectionFailed, addr, err)
}

func NewPingFailedError(err error) error {
	return fmt.Errorf("redis ping failed: %w", err)
}

func NewConsumeFailedError(key string, err error) error {
	return fmt.Errorf("failed to consume from bucket '%s': %w", key, err)
}

func NewCompensateFailedError(key string, err error) error {
	return fmt.Errorf("failed to compensate bucket '%s': %w", key, err)
}

func NewPeekFailedError(key string, err error) error {
	return fmt.Errorf("failed to peek bucket '%s': %w", key, err)
}

func NewDeleteFailedError(key string, err error) error {
	return fmt.Errorf("failed to delete bucket '%s': %w", key, err)
}

func NewScanFailedError(prefix string, err error) error {
	return fmt.Errorf("failed to scan buckets with prefix '%s': %w", prefix, err)
}

func NewCloseFailedError(err error) error {
	return fmt.Errorf("failed to close redis connection: %w", err)
}

func NewMalformedReplyError(key string, reply any) error {
	return fmt.Errorf("%w for bucket '%s': %v", ErrMalformedReply, key, reply)
}
