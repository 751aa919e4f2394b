package resilience

import (
	"sync/atomic"
	"time"
)

// State represents the circuit breaker state.
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// FallbackStrategy governs short-circuited calls while the circuit is open.
type FallbackStrategy string

const (
	// FallbackFailOpen lets the caller substitute a fallback value; for the
	// engine that means allow-without-rule.
	FallbackFailOpen FallbackStrategy = "fail-open"

	// FallbackFailClosed surfaces the circuit-open error to the caller.
	FallbackFailClosed FallbackStrategy = "fail-closed"
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Enabled             bool
	FailureThreshold    int32
	WaitInOpen          time.Duration
	PermittedInHalfOpen int32
	Fallback            FallbackStrategy
}

// DefaultBreakerConfig returns a breaker config with sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:             true,
		FailureThreshold:    5,
		WaitInOpen:          10 * time.Second,
		PermittedInHalfOpen: 1,
		Fallback:            FallbackFailOpen,
	}
}

func (c BreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.FailureThreshold < 1 {
		return NewInvalidBreakerConfigError("failureThreshold", int64(c.FailureThreshold))
	}
	if c.WaitInOpen <= 0 {
		return NewInvalidBreakerConfigError("waitInOpen", int64(c.WaitInOpen))
	}
	if c.PermittedInHalfOpen < 1 {
		return NewInvalidBreakerConfigError("permittedInHalfOpen", int64(c.PermittedInHalfOpen))
	}
	if c.Fallback != FallbackFailOpen && c.Fallback != FallbackFailClosed {
		return NewInvalidBreakerConfigError("fallback", 0)
	}
	return nil
}

// Breaker is a three-state circuit breaker for one named resource, built on
// atomic operations so the request path never takes a lock.
//
// A disabled breaker is pass-through with no state.
type Breaker struct {
	name   string
	config BreakerConfig // read-only after construction

	state             int32 // atomic, stores a State value
	failures          int32 // atomic consecutive-failure counter
	openedAt          int64 // atomic, nanoseconds since Unix epoch
	halfOpenInFlight  int32 // atomic probe admission counter
	halfOpenSuccesses int32 // atomic probe success counter
}

// NewBreaker creates a circuit breaker for the named resource.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	return &Breaker{
		name:   name,
		config: config,
		state:  int32(StateClosed),
	}
}

// Name returns the resource name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Fallback returns the configured short-circuit strategy.
func (b *Breaker) Fallback() FallbackStrategy {
	return b.config.Fallback
}

// Allow reports whether a call may proceed. A nil return admits the call;
// the caller must then report the outcome via RecordSuccess or RecordFailure.
// ErrCircuitOpen means the call is short-circuited.
func (b *Breaker) Allow() error {
	if b == nil || !b.config.Enabled {
		return nil
	}

	switch State(atomic.LoadInt32(&b.state)) {
	case StateClosed:
		return nil
	case StateOpen:
		openedAt := atomic.LoadInt64(&b.openedAt)
		if time.Since(time.Unix(0, openedAt)) < b.config.WaitInOpen {
			return NewCircuitOpenError(b.name)
		}
		// Wait elapsed: exactly one winner moves to half-open and resets the
		// probe counters; everyone competes for probe slots after that.
		if atomic.CompareAndSwapInt32(&b.state, int32(StateOpen), int32(StateHalfOpen)) {
			atomic.StoreInt32(&b.halfOpenInFlight, 0)
			atomic.StoreInt32(&b.halfOpenSuccesses, 0)
		}
		return b.admitProbe()
	default: // StateHalfOpen
		return b.admitProbe()
	}
}

func (b *Breaker) admitProbe() error {
	if atomic.AddInt32(&b.halfOpenInFlight, 1) > b.config.PermittedInHalfOpen {
		atomic.AddInt32(&b.halfOpenInFlight, -1)
		return NewCircuitOpenError(b.name)
	}
	return nil
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	if b == nil || !b.config.Enabled {
		return
	}

	switch State(atomic.LoadInt32(&b.state)) {
	case StateHalfOpen:
		if atomic.AddInt32(&b.halfOpenSuccesses, 1) >= b.config.PermittedInHalfOpen {
			b.close()
		}
	case StateClosed:
		atomic.StoreInt32(&b.failures, 0)
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure() {
	if b == nil || !b.config.Enabled {
		return
	}

	switch State(atomic.LoadInt32(&b.state)) {
	case StateHalfOpen:
		// Any probe failure re-opens and restarts the wait timer.
		b.open()
	case StateClosed:
		if atomic.AddInt32(&b.failures, 1) >= b.config.FailureThreshold {
			b.open()
		}
	}
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	if b == nil || !b.config.Enabled {
		return StateClosed
	}
	return State(atomic.LoadInt32(&b.state))
}

func (b *Breaker) open() {
	atomic.StoreInt64(&b.openedAt, time.Now().UnixNano())
	atomic.StoreInt32(&b.state, int32(StateOpen))
}

func (b *Breaker) close() {
	atomic.StoreInt32(&b.failures, 0)
	atomic.StoreInt32(&b.state, int32(StateClosed))
}
