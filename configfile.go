package fluxgate

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxgate/fluxgate/resilience"
)

// fileDuration parses human-readable durations ("500ms", "2m") from YAML.
type fileDuration struct {
	time.Duration
}

func (d *fileDuration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// fileConfig is the YAML document schema. Every field is optional; absent
// fields keep their defaults. Kept separate from Config so the file format
// can evolve without touching the runtime configuration types.
type fileConfig struct {
	OnMissingRuleSet *string `yaml:"onMissingRuleSet"`

	Cache struct {
		TTL         *fileDuration `yaml:"ttl"`
		NegativeTTL *fileDuration `yaml:"negativeTtl"`
		MaxSize     *int          `yaml:"maxSize"`
	} `yaml:"cache"`

	Reload struct {
		Strategy             *string       `yaml:"strategy"`
		PollingInterval      *fileDuration `yaml:"pollingInterval"`
		InitialDelay         *fileDuration `yaml:"initialDelay"`
		PubsubChannel        *string       `yaml:"pubsubChannel"`
		PubsubRetryInterval  *fileDuration `yaml:"pubsubRetryInterval"`
		PubsubRetryEnabled   *bool         `yaml:"pubsubRetryEnabled"`
		PubsubMaxRetries     *int          `yaml:"pubsubMaxRetries"`
		ResetBucketsOnChange *bool         `yaml:"resetBucketsOnChange"`
	} `yaml:"reload"`

	Retry struct {
		Enabled        *bool         `yaml:"enabled"`
		MaxAttempts    *int          `yaml:"maxAttempts"`
		InitialBackoff *fileDuration `yaml:"initialBackoff"`
		Multiplier     *float64      `yaml:"multiplier"`
		MaxBackoff     *fileDuration `yaml:"maxBackoff"`
	} `yaml:"retry"`

	CircuitBreaker struct {
		Enabled             *bool         `yaml:"enabled"`
		FailureThreshold    *int32        `yaml:"failureThreshold"`
		WaitInOpen          *fileDuration `yaml:"waitInOpen"`
		PermittedInHalfOpen *int32        `yaml:"permittedInHalfOpen"`
		Fallback            *string       `yaml:"fallback"`
	} `yaml:"circuitBreaker"`

	WaitForRefill struct {
		Enabled            *bool         `yaml:"enabled"`
		MaxWait            *fileDuration `yaml:"maxWait"`
		MaxConcurrentWaits *int64        `yaml:"maxConcurrentWaits"`
	} `yaml:"waitForRefill"`
}

// apply overlays the file's set fields onto config.
func (f *fileConfig) apply(config *Config) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *fileDuration) {
		if src != nil {
			*dst = src.Duration
		}
	}

	if f.OnMissingRuleSet != nil {
		config.OnMissingRuleSet = MissingRuleSetPolicy(*f.OnMissingRuleSet)
	}

	setDuration(&config.Cache.TTL, f.Cache.TTL)
	setDuration(&config.Cache.NegativeTTL, f.Cache.NegativeTTL)
	if f.Cache.MaxSize != nil {
		config.Cache.MaxSize = *f.Cache.MaxSize
	}

	if f.Reload.Strategy != nil {
		config.Reload.Strategy = ReloadStrategyKind(*f.Reload.Strategy)
	}
	setDuration(&config.Reload.Polling.Interval, f.Reload.PollingInterval)
	setDuration(&config.Reload.Polling.InitialDelay, f.Reload.InitialDelay)
	setString(&config.Reload.PubSub.Channel, f.Reload.PubsubChannel)
	setDuration(&config.Reload.PubSub.RetryInterval, f.Reload.PubsubRetryInterval)
	if f.Reload.PubsubRetryEnabled != nil {
		config.Reload.PubSub.RetryEnabled = *f.Reload.PubsubRetryEnabled
	}
	if f.Reload.PubsubMaxRetries != nil {
		config.Reload.PubSub.MaxRetries = *f.Reload.PubsubMaxRetries
	}
	if f.Reload.ResetBucketsOnChange != nil {
		config.Reload.ResetBucketsOnChange = *f.Reload.ResetBucketsOnChange
	}

	if f.Retry.Enabled != nil {
		config.Retry.Enabled = *f.Retry.Enabled
	}
	if f.Retry.MaxAttempts != nil {
		config.Retry.MaxAttempts = *f.Retry.MaxAttempts
	}
	setDuration(&config.Retry.InitialBackoff, f.Retry.InitialBackoff)
	if f.Retry.Multiplier != nil {
		config.Retry.Multiplier = *f.Retry.Multiplier
	}
	setDuration(&config.Retry.MaxBackoff, f.Retry.MaxBackoff)

	if f.CircuitBreaker.Enabled != nil {
		config.CircuitBreaker.Enabled = *f.CircuitBreaker.Enabled
	}
	if f.CircuitBreaker.FailureThreshold != nil {
		config.CircuitBreaker.FailureThreshold = *f.CircuitBreaker.FailureThreshold
	}
	setDuration(&config.CircuitBreaker.WaitInOpen, f.CircuitBreaker.WaitInOpen)
	if f.CircuitBreaker.PermittedInHalfOpen != nil {
		config.CircuitBreaker.PermittedInHalfOpen = *f.CircuitBreaker.PermittedInHalfOpen
	}
	if f.CircuitBreaker.Fallback != nil {
		config.CircuitBreaker.Fallback = resilience.FallbackStrategy(*f.CircuitBreaker.Fallback)
	}

	if f.WaitForRefill.Enabled != nil {
		config.WaitForRefill.Enabled = *f.WaitForRefill.Enabled
	}
	setDuration(&config.WaitForRefill.MaxWait, f.WaitForRefill.MaxWait)
	if f.WaitForRefill.MaxConcurrentWaits != nil {
		config.WaitForRefill.MaxConcurrentWaits = *f.WaitForRefill.MaxConcurrentWaits
	}
}
