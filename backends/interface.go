package backends

import (
	"context"
)

// Decision is the outcome of a single bucket consume or peek.
type Decision struct {
	// Allowed reports whether the requested permits were granted.
	Allowed bool

	// Remaining is the token count after consumption when allowed, or the
	// current (pre-consume) token count when rejected.
	Remaining int64

	// NanosToWait is how long the caller must wait before the requested
	// permits could be granted. Zero when allowed.
	NanosToWait int64

	// ResetTimeMillis is the epoch time in milliseconds at which the bucket
	// would be full again.
	ResetTimeMillis int64
}

// Store defines the bucket storage interface for atomic token bucket operations.
//
// Operations on a single bucket key are serialized with respect to all other
// operations on the same key across all clients of the shared store. Keys are
// opaque strings; callers own the key namespace.
type Store interface {
	// Consume atomically refills the bucket identified by key from elapsed
	// store time and attempts to take permits tokens from it. Rejection is
	// read-only: a denied consume leaves the stored bucket state untouched.
	Consume(ctx context.Context, key string, capacity, windowNanos, permits int64) (Decision, error)

	// Compensate returns permits tokens to the bucket, clamped at capacity.
	// It never advances the refill timestamp and is a no-op for buckets that
	// do not exist. Used to undo partial multi-band consumption.
	Compensate(ctx context.Context, key string, capacity, permits int64) error

	// Peek reports the bucket's current state after a virtual refill without
	// consuming anything or writing state.
	Peek(ctx context.Context, key string, capacity, windowNanos int64) (Decision, error)

	// Reset deletes the bucket state for key. Idempotent.
	Reset(ctx context.Context, key string) error

	// ResetByPrefix deletes every bucket whose key starts with prefix using
	// an incremental, non-blocking traversal. Returns the number of buckets
	// removed.
	ResetByPrefix(ctx context.Context, prefix string) (int64, error)

	// Ping checks connectivity to the underlying store.
	Ping(ctx context.Context) error

	// Close releases resources used by the store.
	Close() error
}

// CheckArgs validates the common consume arguments. A violation is a fatal
// caller error, never retried and never reaching the store.
func CheckArgs(capacity, windowNanos, permits int64) error {
	if capacity <= 0 {
		return NewInvalidArgumentError("capacity", capacity)
	}
	if windowNanos <= 0 {
		return NewInvalidArgumentError("window", windowNanos)
	}
	if permits <= 0 {
		return NewInvalidArgumentError("permits", permits)
	}
	return nil
}
