// Package cache holds resolved rule sets in memory so the hot path never
// waits on the rule store. Entries expire by TTL, misses are cached
// negatively for a shorter window, and reload events invalidate entries
// before their TTL runs out.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fluxgate/fluxgate/rules"
)

// Config holds configuration for the rule set cache.
type Config struct {
	// TTL bounds how stale a cached rule set may get when reload events are
	// lost or disabled.
	TTL time.Duration

	// NegativeTTL bounds how long an unknown rule set id keeps answering
	// from cache. Kept shorter than TTL so newly created rule sets show up
	// quickly.
	NegativeTTL time.Duration

	// MaxSize caps the number of cached rule sets; least recently used
	// entries are evicted beyond it.
	MaxSize int
}

// DefaultConfig returns a cache config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		NegativeTTL: 30 * time.Second,
		MaxSize:     1024,
	}
}

func (c Config) Validate() error {
	if c.TTL <= 0 {
		return NewInvalidCacheConfigError("ttl", int64(c.TTL))
	}
	if c.NegativeTTL <= 0 || c.NegativeTTL > c.TTL {
		return NewInvalidCacheConfigError("negativeTtl", int64(c.NegativeTTL))
	}
	if c.MaxSize < 1 {
		return NewInvalidCacheConfigError("maxSize", int64(c.MaxSize))
	}
	return nil
}

type entry struct {
	ruleSet  *rules.RuleSet
	negative bool
	storedAt time.Time
}

// RuleSetCache is a TTL-bounded LRU of resolved rule sets keyed by rule set
// id. A negative entry records a confirmed miss. Safe for concurrent use.
type RuleSetCache struct {
	lru         *expirable.LRU[string, entry]
	negativeTTL time.Duration
	now         func() time.Time
}

// NewRuleSetCache creates a cache from the given config. The config must have
// been validated.
func NewRuleSetCache(config Config) *RuleSetCache {
	return &RuleSetCache{
		lru:         expirable.NewLRU[string, entry](config.MaxSize, nil, config.TTL),
		negativeTTL: config.NegativeTTL,
		now:         time.Now,
	}
}

// Get returns the cached rule set. hit=true with a nil rule set is a cached
// miss: the id was recently confirmed absent upstream.
func (c *RuleSetCache) Get(ruleSetID string) (ruleSet *rules.RuleSet, hit bool) {
	e, ok := c.lru.Get(ruleSetID)
	if !ok {
		return nil, false
	}
	if e.negative {
		// The LRU expires everything at the positive TTL; negative entries
		// age out earlier here.
		if c.now().Sub(e.storedAt) >= c.negativeTTL {
			c.lru.Remove(ruleSetID)
			return nil, false
		}
		return nil, true
	}
	return e.ruleSet, true
}

// Put stores a resolved rule set.
func (c *RuleSetCache) Put(ruleSetID string, ruleSet *rules.RuleSet) {
	c.lru.Add(ruleSetID, entry{ruleSet: ruleSet, storedAt: c.now()})
}

// PutNegative records that the rule set id has no rules upstream.
func (c *RuleSetCache) PutNegative(ruleSetID string) {
	c.lru.Add(ruleSetID, entry{negative: true, storedAt: c.now()})
}

// Invalidate drops one entry. The next Get misses and reloads.
func (c *RuleSetCache) Invalidate(ruleSetID string) {
	c.lru.Remove(ruleSetID)
}

// InvalidateAll drops every entry.
func (c *RuleSetCache) InvalidateAll() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *RuleSetCache) Len() int {
	return c.lru.Len()
}
