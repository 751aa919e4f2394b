package resilience

import (
	"context"
	"errors"
)

// Executor composes the retry executor and a circuit breaker around one
// resource's calls. Either part may be nil, leaving the other in effect; an
// Executor with both nil is plain pass-through.
type Executor struct {
	retryer *Retryer
	breaker *Breaker
}

func NewExecutor(retryer *Retryer, breaker *Breaker) *Executor {
	return &Executor{retryer: retryer, breaker: breaker}
}

// Breaker returns the wrapped circuit breaker, if any.
func (e *Executor) Breaker() *Breaker {
	if e == nil {
		return nil
	}
	return e.breaker
}

// Do runs fn behind the breaker and retry policy. The full retried operation
// counts as one breaker call: the breaker observes the final outcome, not
// each attempt.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if e == nil {
		return fn(ctx)
	}

	if err := e.breaker.Allow(); err != nil {
		return err
	}

	var err error
	if e.retryer != nil {
		err = e.retryer.Do(ctx, op, fn)
	} else {
		err = fn(ctx)
	}

	if err == nil {
		e.breaker.RecordSuccess()
		return nil
	}
	// Caller cancellation says nothing about resource health.
	if !errors.Is(err, context.Canceled) {
		e.breaker.RecordFailure()
	}
	return err
}

// ExecuteValue is Executor.Do for operations that produce a value.
func ExecuteValue[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	var value T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		var innerErr error
		value, innerErr = fn(ctx)
		return innerErr
	})
	return value, err
}
