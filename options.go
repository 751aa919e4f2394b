package fluxgate

import (
	"log/slog"

	"github.com/fluxgate/fluxgate/backends"
	backendmemory "github.com/fluxgate/fluxgate/backends/memory"
	backendredis "github.com/fluxgate/fluxgate/backends/redis"
	"github.com/fluxgate/fluxgate/cache"
	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/rules"
	rulememory "github.com/fluxgate/fluxgate/rules/memory"
	rulepostgres "github.com/fluxgate/fluxgate/rules/postgres"
)

type engineOptions struct {
	config Config

	bucketStore backends.Store
	ruleStore   rules.Store
	logger      *slog.Logger
	recorder    rules.MetricsRecorder
	resolver    rules.Resolver

	err error
}

// Option configures the engine at construction time.
type Option func(*engineOptions)

// WithConfig replaces the default configuration wholesale. Later options may
// still override individual sections.
func WithConfig(config Config) Option {
	return func(o *engineOptions) {
		o.config = config
	}
}

// WithConfigFile loads the configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(o *engineOptions) {
		config, err := LoadConfig(path)
		if err != nil {
			o.err = err
			return
		}
		o.config = config
	}
}

// WithMemoryBackend stores buckets in process memory. Suitable for tests and
// single-instance deployments; counts are not shared across instances.
func WithMemoryBackend() Option {
	return func(o *engineOptions) {
		o.bucketStore = backendmemory.New(backendmemory.Config{})
	}
}

// WithRedisBackend stores buckets on a shared Redis so limits hold across
// instances.
func WithRedisBackend(config backendredis.Config) Option {
	return func(o *engineOptions) {
		store, err := backendredis.New(config)
		if err != nil {
			o.err = err
			return
		}
		o.bucketStore = store
	}
}

// WithBucketStore uses a caller-constructed bucket store.
func WithBucketStore(store backends.Store) Option {
	return func(o *engineOptions) {
		o.bucketStore = store
	}
}

// WithNamedBackend constructs the bucket store through the backend registry.
func WithNamedBackend(name string, config any) Option {
	return func(o *engineOptions) {
		store, err := backends.Create(name, config)
		if err != nil {
			o.err = err
			return
		}
		o.bucketStore = store
	}
}

// WithMemoryRuleStore keeps rules in process memory.
func WithMemoryRuleStore() Option {
	return func(o *engineOptions) {
		o.ruleStore = rulememory.New()
	}
}

// WithPostgresRuleStore keeps rules in a PostgreSQL control plane.
func WithPostgresRuleStore(config rulepostgres.Config) Option {
	return func(o *engineOptions) {
		store, err := rulepostgres.New(config)
		if err != nil {
			o.err = err
			return
		}
		o.ruleStore = store
	}
}

// WithRuleStore uses a caller-constructed rule store.
func WithRuleStore(store rules.Store) Option {
	return func(o *engineOptions) {
		o.ruleStore = store
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMetricsRecorder attaches a per-check outcome recorder to every loaded
// rule set.
func WithMetricsRecorder(recorder rules.MetricsRecorder) Option {
	return func(o *engineOptions) {
		o.recorder = recorder
	}
}

// WithKeyResolver overrides the key resolver attached to loaded rule sets.
// Defaults to registry dispatch by each rule's key strategy id.
func WithKeyResolver(resolver rules.Resolver) Option {
	return func(o *engineOptions) {
		o.resolver = resolver
	}
}

// WithOnMissingRuleSet sets the policy for checks against an unknown rule
// set id.
func WithOnMissingRuleSet(policy MissingRuleSetPolicy) Option {
	return func(o *engineOptions) {
		o.config.OnMissingRuleSet = policy
	}
}

// WithRuleCache tunes the rule set cache.
func WithRuleCache(config cache.Config) Option {
	return func(o *engineOptions) {
		o.config.Cache = config
	}
}

// WithReload selects and tunes the reload strategy.
func WithReload(config ReloadConfig) Option {
	return func(o *engineOptions) {
		o.config.Reload = config
	}
}

// WithRetry tunes the retry policy applied to store calls.
func WithRetry(config resilience.RetryConfig) Option {
	return func(o *engineOptions) {
		o.config.Retry = config
	}
}

// WithCircuitBreaker tunes the circuit breakers guarding the stores.
func WithCircuitBreaker(config resilience.BreakerConfig) Option {
	return func(o *engineOptions) {
		o.config.CircuitBreaker = config
	}
}

// WithWaitForRefill enables bounded engine-side waits for rules with the
// wait-for-refill over-limit policy.
func WithWaitForRefill(config WaitForRefillConfig) Option {
	return func(o *engineOptions) {
		o.config.WaitForRefill = config
	}
}
