package cache

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/rules"
)

// Provider resolves rule sets from the rule store through the cache. Upstream
// loads run behind the resilience executor, and concurrent misses for the
// same id are coalesced into a single store query.
//
// Provider implements the reload listener contract via OnRuleChanged.
type Provider struct {
	cache    *RuleSetCache
	store    rules.Store
	executor *resilience.Executor
	resolver rules.Resolver
	recorder rules.MetricsRecorder
	logger   *slog.Logger

	group singleflight.Group
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithResolver sets the key resolver attached to loaded rule sets. Defaults
// to the registry dispatch resolver.
func WithResolver(resolver rules.Resolver) ProviderOption {
	return func(p *Provider) {
		p.resolver = resolver
	}
}

// WithRecorder sets the metrics recorder attached to loaded rule sets.
func WithRecorder(recorder rules.MetricsRecorder) ProviderOption {
	return func(p *Provider) {
		p.recorder = recorder
	}
}

// WithLogger sets the logger for load failures and reload events.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a provider over the given store and cache. The executor
// may be nil for direct store access.
func NewProvider(cache *RuleSetCache, store rules.Store, executor *resilience.Executor, opts ...ProviderOption) *Provider {
	p := &Provider{
		cache:    cache,
		store:    store,
		executor: executor,
		resolver: rules.DispatchResolver(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the rule set for the given id, loading it from the store on a
// cache miss. A cached or confirmed miss yields ErrRuleSetNotFound; other
// errors are infrastructure failures and the caller decides whether to fail
// open.
func (p *Provider) Get(ctx context.Context, ruleSetID string) (*rules.RuleSet, error) {
	if ruleSet, hit := p.cache.Get(ruleSetID); hit {
		if ruleSet == nil {
			return nil, rules.NewRuleSetNotFoundError(ruleSetID)
		}
		return ruleSet, nil
	}

	v, err, _ := p.group.Do(ruleSetID, func() (any, error) {
		return p.load(ctx, ruleSetID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*rules.RuleSet), nil
}

func (p *Provider) load(ctx context.Context, ruleSetID string) (*rules.RuleSet, error) {
	// Someone else may have filled the entry while we queued on the flight
	// group.
	if ruleSet, hit := p.cache.Get(ruleSetID); hit {
		if ruleSet == nil {
			return nil, rules.NewRuleSetNotFoundError(ruleSetID)
		}
		return ruleSet, nil
	}

	list, err := resilience.ExecuteValue(ctx, p.executor, "rules.findByRuleSetId",
		func(ctx context.Context) ([]rules.Rule, error) {
			return p.store.FindByRuleSetID(ctx, ruleSetID)
		})
	if err != nil {
		if errors.Is(err, rules.ErrRuleSetNotFound) {
			p.cache.PutNegative(ruleSetID)
			return nil, err
		}
		return nil, err
	}

	ruleSet := &rules.RuleSet{
		ID:       ruleSetID,
		Rules:    list,
		Resolver: p.resolver,
		Recorder: p.recorder,
	}
	p.cache.Put(ruleSetID, ruleSet)
	return ruleSet, nil
}

// OnRuleChanged invalidates the cached rule set so the next check reloads it.
// An empty id invalidates everything.
func (p *Provider) OnRuleChanged(ruleSetID string) {
	if ruleSetID == "" {
		p.cache.InvalidateAll()
		p.logger.Info("rule cache invalidated", "scope", "all")
		return
	}
	p.cache.Invalidate(ruleSetID)
	p.logger.Info("rule cache invalidated", "ruleSetId", ruleSetID)
}
