package fluxgate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxgate/fluxgate/cache"
	"github.com/fluxgate/fluxgate/reload"
	"github.com/fluxgate/fluxgate/resilience"
)

// MissingRuleSetPolicy controls checks against a rule set id that has no
// stored rules.
type MissingRuleSetPolicy string

const (
	// MissingRuleSetThrow surfaces ErrRuleSetNotFound to the caller.
	MissingRuleSetThrow MissingRuleSetPolicy = "throw"

	// MissingRuleSetAllow allows the request without a rule.
	MissingRuleSetAllow MissingRuleSetPolicy = "allow"
)

// ReloadStrategyKind selects the cache coherence mechanism.
type ReloadStrategyKind string

const (
	ReloadNone    ReloadStrategyKind = "none"
	ReloadPolling ReloadStrategyKind = "polling"
	ReloadPubSub  ReloadStrategyKind = "pubsub"

	// ReloadAuto selects pubsub when the shared store is reachable, polling
	// otherwise.
	ReloadAuto ReloadStrategyKind = "auto"
)

// ReloadConfig groups the reload strategy selection with per-strategy tuning.
type ReloadConfig struct {
	Strategy ReloadStrategyKind
	Polling  reload.PollingConfig
	PubSub   reload.PubSubConfig

	// ResetBucketsOnChange clears a rule set's buckets when its rules
	// change, so consumption against old limits does not carry over.
	ResetBucketsOnChange bool
}

// WaitForRefillConfig bounds the engine-side wait honored for rules with the
// wait-for-refill over-limit policy.
type WaitForRefillConfig struct {
	Enabled bool

	// MaxWait is the longest refill wait the engine will sit out. Rejections
	// needing more surface immediately.
	MaxWait time.Duration

	// MaxConcurrentWaits caps goroutines parked in waits; beyond it,
	// rejections surface immediately instead of queueing.
	MaxConcurrentWaits int64
}

// Config is the engine configuration.
type Config struct {
	OnMissingRuleSet MissingRuleSetPolicy
	Cache            cache.Config
	Reload           ReloadConfig
	Retry            resilience.RetryConfig
	CircuitBreaker   resilience.BreakerConfig
	WaitForRefill    WaitForRefillConfig
}

// DefaultConfig returns the configuration used when no options override it.
func DefaultConfig() Config {
	return Config{
		OnMissingRuleSet: MissingRuleSetAllow,
		Cache:            cache.DefaultConfig(),
		Reload: ReloadConfig{
			Strategy:             ReloadNone,
			Polling:              reload.DefaultPollingConfig(),
			PubSub:               reload.DefaultPubSubConfig(),
			ResetBucketsOnChange: true,
		},
		Retry:          resilience.DefaultRetryConfig(),
		CircuitBreaker: resilience.DefaultBreakerConfig(),
		WaitForRefill: WaitForRefillConfig{
			Enabled:            false,
			MaxWait:            5 * time.Second,
			MaxConcurrentWaits: 1024,
		},
	}
}

func (c Config) Validate() error {
	switch c.OnMissingRuleSet {
	case MissingRuleSetThrow, MissingRuleSetAllow:
	default:
		return NewInvalidEngineConfigError("onMissingRuleSet", string(c.OnMissingRuleSet))
	}

	switch c.Reload.Strategy {
	case ReloadNone, ReloadPolling, ReloadPubSub, ReloadAuto:
	default:
		return NewInvalidEngineConfigError("reload.strategy", string(c.Reload.Strategy))
	}

	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Reload.Polling.Validate(); err != nil {
		return err
	}
	if err := c.Reload.PubSub.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		return err
	}

	if c.WaitForRefill.Enabled {
		if c.WaitForRefill.MaxWait <= 0 {
			return NewInvalidEngineConfigError("waitForRefill.maxWait", c.WaitForRefill.MaxWait.String())
		}
		if c.WaitForRefill.MaxConcurrentWaits < 1 {
			return NewInvalidEngineConfigError("waitForRefill.maxConcurrentWaits",
				fmt.Sprintf("%d", c.WaitForRefill.MaxConcurrentWaits))
		}
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parsing config file '%s': %w", path, err)
	}

	config := DefaultConfig()
	file.apply(&config)
	return config, nil
}
