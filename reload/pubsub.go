package reload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel rule-change events travel on. The
// payload is a rule set id, or empty for "everything changed".
const DefaultChannel = "fluxgate:rule-reload"

// maxRetryBackoffMultiple caps the reconnect backoff at this multiple of the
// configured retry interval.
const maxRetryBackoffMultiple = 8

// PubSubConfig holds configuration for the pub/sub strategy.
type PubSubConfig struct {
	// Channel is the pub/sub channel name.
	Channel string

	// RetryInterval is the initial backoff between reconnect attempts after
	// a dropped subscription.
	RetryInterval time.Duration

	// RetryEnabled controls reconnecting at all. When false a dropped
	// subscription ends the strategy.
	RetryEnabled bool

	// MaxRetries is the consecutive reconnect budget before giving up.
	// Zero means unlimited.
	MaxRetries int
}

// DefaultPubSubConfig returns a pub/sub config with sensible defaults.
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		Channel:       DefaultChannel,
		RetryInterval: time.Second,
		RetryEnabled:  true,
		MaxRetries:    0,
	}
}

func (c PubSubConfig) Validate() error {
	if c.Channel == "" {
		return NewInvalidReloadConfigError("pubsubChannel", 0)
	}
	if c.RetryInterval <= 0 {
		return NewInvalidReloadConfigError("pubsubRetryInterval", int64(c.RetryInterval))
	}
	if c.MaxRetries < 0 {
		return NewInvalidReloadConfigError("pubsubMaxRetries", int64(c.MaxRetries))
	}
	return nil
}

// PubSubStrategy subscribes to a channel on the shared store and relays each
// message payload to listeners. Dropped subscriptions reconnect with bounded
// exponential backoff until the retry budget runs out.
type PubSubStrategy struct {
	*notifier
	client *redis.Client
	config PubSubConfig
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	doneChan chan struct{}
}

// NewPubSubStrategy creates a pub/sub strategy over the given client. The
// config must have been validated.
func NewPubSubStrategy(client *redis.Client, config PubSubConfig, logger *slog.Logger) *PubSubStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSubStrategy{
		notifier: newNotifier(logger),
		client:   client,
		config:   config,
		logger:   logger,
	}
}

func (s *PubSubStrategy) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.doneChan = make(chan struct{})

	go s.run(runCtx, s.doneChan)
	s.logger.Info("rule reload subscription started", "channel", s.config.Channel)
	return nil
}

func (s *PubSubStrategy) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.doneChan:
	case <-time.After(stopBudget):
		s.logger.Warn("rule reload subscription did not stop within budget")
	}
	s.cancel = nil
	s.doneChan = nil
	return nil
}

func (s *PubSubStrategy) run(ctx context.Context, doneChan chan<- struct{}) {
	defer close(doneChan)

	retries := 0
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		if !s.config.RetryEnabled {
			s.logger.Error("rule reload subscription dropped, retry disabled", "error", err)
			return
		}
		retries++
		if s.config.MaxRetries > 0 && retries > s.config.MaxRetries {
			s.logger.Error("rule reload subscription abandoned, retry budget exhausted",
				"retries", retries-1, "error", err)
			return
		}

		backoff := backoffFor(s.config.RetryInterval, retries)
		s.logger.Warn("rule reload subscription dropped, reconnecting",
			"attempt", retries, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

// consume holds one subscription until it fails or the context ends. A
// successfully established subscription resets the caller's retry count via
// the nil error on clean shutdown only; transport errors return non-nil.
func (s *PubSubStrategy) consume(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.config.Channel)
	defer func() { _ = sub.Close() }()

	// Confirm the subscription before trusting the channel.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}
			s.notify(msg.Payload)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func backoffFor(interval time.Duration, attempt int) time.Duration {
	backoff := interval
	for i := 1; i < attempt && backoff < interval*maxRetryBackoffMultiple; i++ {
		backoff *= 2
	}
	if backoff > interval*maxRetryBackoffMultiple {
		backoff = interval * maxRetryBackoffMultiple
	}
	return backoff
}

// Publisher emits rule-change events for other instances to pick up.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a publisher on the given channel; empty means
// DefaultChannel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Publish announces that the rule set changed. An empty id announces a full
// reload.
func (p *Publisher) Publish(ctx context.Context, ruleSetID string) error {
	return p.client.Publish(ctx, p.channel, ruleSetID).Err()
}
