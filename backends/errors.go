package backends

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound is returned when attempting to create a bucket store
	// with an unknown ID.
	ErrStoreNotFound = errors.New("bucket store not found")

	// ErrInvalidConfig is returned when the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid bucket store configuration")

	// ErrInvalidArgument is returned for non-positive capacity, window or
	// permits. Fatal: never retried, state untouched.
	ErrInvalidArgument = errors.New("invalid bucket argument")
)

// NewInvalidArgumentError reports a non-positive consume argument.
func NewInvalidArgumentError(field string, value int64) error {
	return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidArgument, field, value)
}

// retryableError tags an error as a transient store failure that may be
// retried by the resilience layer.
type retryableError struct {
	err error
}

func (r *retryableError) Error() string {
	return r.err.Error()
}

func (r *retryableError) Unwrap() error {
	return r.err
}

// MarkRetryable wraps err so that IsRetryable reports true for it.
// A nil err returns nil.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or any error it wraps) was marked as a
// transient store failure.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}
