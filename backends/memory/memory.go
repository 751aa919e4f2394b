package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fluxgate/fluxgate/backends"
)

// Config holds configuration for the in-process bucket store.
type Config struct {
	// Clock overrides the time source. Nil means wall clock. Intended for
	// tests and deterministic replay.
	Clock func() time.Time
}

// Store is an in-process bucket store. It implements the same decision
// algorithm as the shared-store variant and is suitable for tests and
// single-instance deployments without a shared data plane.
type Store struct {
	mu      sync.Mutex
	buckets map[string]bucketState
	now     func() time.Time
}

type bucketState struct {
	tokens          int64
	lastRefillNanos int64
	expiresAtNanos  int64
}

// New creates an in-process bucket store.
func New(config Config) *Store {
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{
		buckets: make(map[string]bucketState),
		now:     now,
	}
}

func (s *Store) Consume(ctx context.Context, key string, capacity, windowNanos, permits int64) (backends.Decision, error) {
	if err := backends.CheckArgs(capacity, windowNanos, permits); err != nil {
		return backends.Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return backends.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowNanos := s.now().UnixNano()
	tokens, last := s.loadLocked(key, capacity, nowNanos)
	newTokens := refill(tokens, last, nowNanos, capacity, windowNanos)
	resetMillis := resetTimeMillis(nowNanos, newTokens, capacity, windowNanos)

	if newTokens >= permits {
		s.buckets[key] = bucketState{
			tokens:          newTokens - permits,
			lastRefillNanos: nowNanos,
			expiresAtNanos:  nowNanos + expirationSeconds(windowNanos)*int64(time.Second),
		}
		return backends.Decision{
			Allowed:         true,
			Remaining:       newTokens - permits,
			ResetTimeMillis: resetMillis,
		}, nil
	}

	// Rejection is read-only: the stored state keeps its refill baseline so
	// rejected callers observe the same bucket a later caller sees.
	return backends.Decision{
		Allowed:         false,
		Remaining:       newTokens,
		NanosToWait:     ceilMulDiv(permits-newTokens, windowNanos, capacity),
		ResetTimeMillis: resetMillis,
	}, nil
}

func (s *Store) Compensate(ctx context.Context, key string, capacity, permits int64) error {
	if capacity <= 0 || permits <= 0 {
		return backends.NewInvalidArgumentError("permits", permits)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowNanos := s.now().UnixNano()
	state, ok := s.buckets[key]
	if !ok || expired(state, nowNanos) {
		return nil
	}

	state.tokens = min(capacity, state.tokens+permits)
	s.buckets[key] = state
	return nil
}

func (s *Store) Peek(ctx context.Context, key string, capacity, windowNanos int64) (backends.Decision, error) {
	if err := backends.CheckArgs(capacity, windowNanos, 1); err != nil {
		return backends.Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return backends.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowNanos := s.now().UnixNano()
	tokens, last := s.loadLocked(key, capacity, nowNanos)
	newTokens := refill(tokens, last, nowNanos, capacity, windowNanos)

	decision := backends.Decision{
		Allowed:         newTokens >= 1,
		Remaining:       newTokens,
		ResetTimeMillis: resetTimeMillis(nowNanos, newTokens, capacity, windowNanos),
	}
	if newTokens < 1 {
		decision.NanosToWait = ceilMulDiv(1-newTokens, windowNanos, capacity)
	}
	return decision, nil
}

func (s *Store) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets, key)
	return nil
}

func (s *Store) ResetByPrefix(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key := range s.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(s.buckets, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets = make(map[string]bucketState)
	return nil
}

// loadLocked returns the live bucket state for key, treating absent or
// expired entries as a full bucket refilled at nowNanos.
func (s *Store) loadLocked(key string, capacity, nowNanos int64) (tokens, lastRefillNanos int64) {
	state, ok := s.buckets[key]
	if !ok || expired(state, nowNanos) {
		return capacity, nowNanos
	}
	return state.tokens, state.lastRefillNanos
}

func expired(state bucketState, nowNanos int64) bool {
	return state.expiresAtNanos > 0 && nowNanos >= state.expiresAtNanos
}
