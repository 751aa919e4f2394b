// Package fluxgate is a distributed rate limiting engine: rules resolved from
// a control plane store, cached locally with hot reload, enforced through
// atomic multi-band token buckets on a shared key-value store.
//
// The engine fails open: when the infrastructure under a check breaks, the
// request is allowed without a rule rather than dropped.
package fluxgate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fluxgate/fluxgate/backends"
	backendmemory "github.com/fluxgate/fluxgate/backends/memory"
	backendredis "github.com/fluxgate/fluxgate/backends/redis"
	"github.com/fluxgate/fluxgate/cache"
	"github.com/fluxgate/fluxgate/limiter"
	"github.com/fluxgate/fluxgate/reload"
	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/rules"
	rulememory "github.com/fluxgate/fluxgate/rules/memory"
	"github.com/fluxgate/fluxgate/utils"
)

// autoProbeTimeout bounds the shared-store reachability probe behind the
// auto reload strategy.
const autoProbeTimeout = 2 * time.Second

// waitSleepThreshold below which refill waits ignore context cancellation.
const waitSleepThreshold = 10 * time.Millisecond

// Engine is the rate limiting façade. All methods are safe for concurrent
// use.
type Engine struct {
	config      Config
	logger      *slog.Logger
	bucketStore backends.Store
	ruleStore   rules.Store
	provider    *cache.Provider
	limiter     *limiter.Limiter
	strategy    reload.Strategy

	failOpenOnCircuit bool
	waitSem           *semaphore.Weighted
	closed            atomic.Bool
}

// New wires an engine from options. Without options it runs fully in-process:
// memory bucket store, memory rule store, no reload.
func New(opts ...Option) (*Engine, error) {
	o := &engineOptions{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
		if o.err != nil {
			return nil, o.err
		}
	}

	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	if o.bucketStore == nil {
		o.bucketStore = backendmemory.New(backendmemory.Config{})
	}
	if o.ruleStore == nil {
		o.ruleStore = rulememory.New()
	}

	retryer := resilience.NewRetryer(o.config.Retry, o.logger)
	bucketExec := resilience.NewExecutor(retryer, resilience.NewBreaker("bucket-store", o.config.CircuitBreaker))
	ruleExec := resilience.NewExecutor(retryer, resilience.NewBreaker("rule-store", o.config.CircuitBreaker))

	providerOpts := []cache.ProviderOption{cache.WithLogger(o.logger)}
	if o.resolver != nil {
		providerOpts = append(providerOpts, cache.WithResolver(o.resolver))
	}
	if o.recorder != nil {
		providerOpts = append(providerOpts, cache.WithRecorder(o.recorder))
	}
	provider := cache.NewProvider(cache.NewRuleSetCache(o.config.Cache), o.ruleStore, ruleExec, providerOpts...)

	strategy, err := buildStrategy(o.config.Reload, o.bucketStore, o.logger)
	if err != nil {
		return nil, err
	}
	strategy.AddListener(provider)
	if o.config.Reload.ResetBucketsOnChange {
		strategy.AddListener(reload.NewBucketResetHandler(o.bucketStore, o.logger))
	}

	e := &Engine{
		config:            o.config,
		logger:            o.logger,
		bucketStore:       o.bucketStore,
		ruleStore:         o.ruleStore,
		provider:          provider,
		limiter:           limiter.New(o.bucketStore, bucketExec, o.logger),
		strategy:          strategy,
		failOpenOnCircuit: o.config.CircuitBreaker.Fallback == resilience.FallbackFailOpen,
	}
	if o.config.WaitForRefill.Enabled {
		e.waitSem = semaphore.NewWeighted(o.config.WaitForRefill.MaxConcurrentWaits)
	}
	return e, nil
}

func buildStrategy(config ReloadConfig, bucketStore backends.Store, logger *slog.Logger) (reload.Strategy, error) {
	switch config.Strategy {
	case ReloadNone:
		return reload.NewNoneStrategy(), nil
	case ReloadPolling:
		return reload.NewPollingStrategy(config.Polling, logger), nil
	case ReloadPubSub:
		store, ok := bucketStore.(*backendredis.Store)
		if !ok {
			return nil, ErrPubSubRequiresRedis
		}
		return reload.NewPubSubStrategy(store.GetClient(), config.PubSub, logger), nil
	default: // ReloadAuto
		if store, ok := bucketStore.(*backendredis.Store); ok {
			ctx, cancel := context.WithTimeout(context.Background(), autoProbeTimeout)
			defer cancel()
			if store.Ping(ctx) == nil {
				return reload.NewPubSubStrategy(store.GetClient(), config.PubSub, logger), nil
			}
		}
		logger.Info("shared store not reachable for pubsub, falling back to polling")
		return reload.NewPollingStrategy(config.Polling, logger), nil
	}
}

// Start launches the reload strategy. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.strategy.Start(ctx)
}

// Close stops reload, then closes the rule and bucket stores, in that order.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(
		e.strategy.Stop(),
		e.ruleStore.Close(),
		e.bucketStore.Close(),
	)
}

// RuleStore exposes the control plane store, for rule administration.
func (e *Engine) RuleStore() rules.Store {
	return e.ruleStore
}

// BucketStore exposes the data plane store.
func (e *Engine) BucketStore() backends.Store {
	return e.bucketStore
}

// Check evaluates the rule set against the request and consumes permits
// tokens when allowed.
//
// Infrastructure failures produce an allow-without-rule result instead of an
// error; only invalid arguments, configuration mistakes, caller cancellation
// and, under the throw policy, a missing rule set surface as errors.
func (e *Engine) Check(ctx context.Context, ruleSetID string, rctx RequestContext, permits int64) (Result, error) {
	if permits <= 0 {
		return Result{}, backends.NewInvalidArgumentError("permits", permits)
	}

	rs, result, err, done := e.fetchRuleSet(ctx, ruleSetID)
	if done {
		return result, err
	}

	result, err = e.limiter.Check(ctx, rs, rctx, permits)
	if err != nil {
		return e.checkError(err)
	}

	if !result.Allowed && e.shouldWait(result) {
		result, err = e.waitAndRetry(ctx, rs, rctx, permits, result)
		if err != nil {
			return e.checkError(err)
		}
	}

	e.record(rs, result)
	return result, nil
}

// Peek reports what Check would decide for one permit, without consuming.
func (e *Engine) Peek(ctx context.Context, ruleSetID string, rctx RequestContext) (Result, error) {
	rs, result, err, done := e.fetchRuleSet(ctx, ruleSetID)
	if done {
		return result, err
	}

	result, err = e.limiter.Peek(ctx, rs, rctx)
	if err != nil {
		return e.checkError(err)
	}
	return result, nil
}

// Reset deletes every bucket of the rule set and returns the number removed.
func (e *Engine) Reset(ctx context.Context, ruleSetID string) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	if err := utils.ValidateRuleSetID(ruleSetID); err != nil {
		return 0, err
	}
	return e.limiter.Reset(ctx, ruleSetID)
}

// fetchRuleSet resolves the rule set and folds the missing/fail-open policy
// into a final result when the check cannot proceed normally. done=true means
// result and err are the check's answer.
func (e *Engine) fetchRuleSet(ctx context.Context, ruleSetID string) (rs *rules.RuleSet, result Result, err error, done bool) {
	if e.closed.Load() {
		return nil, Result{}, ErrEngineClosed, true
	}
	if err := utils.ValidateRuleSetID(ruleSetID); err != nil {
		return nil, Result{}, err, true
	}

	rs, err = e.provider.Get(ctx, ruleSetID)
	if err == nil {
		return rs, Result{}, nil, false
	}

	switch {
	case errors.Is(err, rules.ErrRuleSetNotFound):
		if e.config.OnMissingRuleSet == MissingRuleSetThrow {
			return nil, Result{}, err, true
		}
		return nil, rules.AllowedWithoutRule(), nil, true
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, Result{}, err, true
	case errors.Is(err, resilience.ErrCircuitOpen):
		if !e.failOpenOnCircuit {
			return nil, Result{}, err, true
		}
		return nil, rules.AllowedWithoutRule(), nil, true
	default:
		e.logger.Warn("rule set load failed, failing open", "ruleSetId", ruleSetID, "error", err)
		return nil, rules.AllowedWithoutRule(), nil, true
	}
}

// checkError maps a limiter error to the caller-visible outcome: argument
// and configuration mistakes surface, infrastructure failures fail open.
func (e *Engine) checkError(err error) (Result, error) {
	switch {
	case errors.Is(err, backends.ErrInvalidArgument),
		errors.Is(err, rules.ErrResolverNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Result{}, err
	case errors.Is(err, resilience.ErrCircuitOpen):
		if !e.failOpenOnCircuit {
			return Result{}, err
		}
		return rules.AllowedWithoutRule(), nil
	default:
		e.logger.Warn("rate limit check failed, failing open", "error", err)
		return rules.AllowedWithoutRule(), nil
	}
}

// shouldWait reports whether a rejection qualifies for an engine-side refill
// wait.
func (e *Engine) shouldWait(result Result) bool {
	if e.waitSem == nil || result.MatchedRule == nil {
		return false
	}
	if result.MatchedRule.OnLimitExceed != rules.PolicyWaitForRefill {
		return false
	}
	return result.NanosToWait > 0 && result.NanosToWait <= e.config.WaitForRefill.MaxWait.Nanoseconds()
}

// waitAndRetry parks until the rejecting band refills, then retries the
// consume once. When the wait queue is full the original rejection stands.
func (e *Engine) waitAndRetry(ctx context.Context, rs *rules.RuleSet, rctx RequestContext, permits int64, rejected Result) (Result, error) {
	if !e.waitSem.TryAcquire(1) {
		return rejected, nil
	}
	defer e.waitSem.Release(1)

	if err := utils.SleepOrWait(ctx, time.Duration(rejected.NanosToWait), waitSleepThreshold); err != nil {
		return rejected, nil
	}
	return e.limiter.Check(ctx, rs, rctx, permits)
}

// record hands the result to the rule set's recorder, best effort: a
// panicking recorder is logged and never fails the check.
func (e *Engine) record(rs *rules.RuleSet, result Result) {
	if rs == nil || rs.Recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("metrics recorder panicked", "ruleSetId", rs.ID, "panic", r)
		}
	}()
	rs.Recorder.RecordCheck(rs.ID, result)
}
