package reload

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PollingConfig holds configuration for the polling strategy.
type PollingConfig struct {
	// Interval between invalidation ticks.
	Interval time.Duration

	// InitialDelay before the first tick, so startup traffic populates the
	// cache before the first forced refresh.
	InitialDelay time.Duration
}

// DefaultPollingConfig returns a polling config with sensible defaults.
func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		Interval:     30 * time.Second,
		InitialDelay: 0,
	}
}

func (c PollingConfig) Validate() error {
	if c.Interval <= 0 {
		return NewInvalidReloadConfigError("pollingInterval", int64(c.Interval))
	}
	if c.InitialDelay < 0 {
		return NewInvalidReloadConfigError("initialDelay", int64(c.InitialDelay))
	}
	return nil
}

// PollingStrategy invalidates all listeners on a fixed interval from one
// background goroutine, so overrunning ticks serialize instead of piling up.
type PollingStrategy struct {
	*notifier
	config     PollingConfig
	logger     *slog.Logger
	stopBudget time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewPollingStrategy creates a polling strategy. The config must have been
// validated.
func NewPollingStrategy(config PollingConfig, logger *slog.Logger) *PollingStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingStrategy{
		notifier:   newNotifier(logger),
		config:     config,
		logger:     logger,
		stopBudget: stopBudget,
	}
}

func (s *PollingStrategy) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan != nil {
		return nil
	}
	if s.doneChan != nil {
		// The previous runner overran its stop budget; wait it out so two
		// pollers never run at once.
		<-s.doneChan
		s.doneChan = nil
	}
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})

	go s.run(ctx, s.stopChan, s.doneChan)
	s.logger.Info("rule reload polling started",
		"interval", s.config.Interval, "initialDelay", s.config.InitialDelay)
	return nil
}

func (s *PollingStrategy) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan == nil {
		return nil
	}
	close(s.stopChan)
	s.stopChan = nil

	// On timeout doneChan is kept so the next Start still has something to
	// wait on before relaunching.
	select {
	case <-s.doneChan:
		s.doneChan = nil
	case <-time.After(s.stopBudget):
		s.logger.Warn("rule reload polling did not stop within budget")
	}
	return nil
}

func (s *PollingStrategy) run(ctx context.Context, stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)

	if s.config.InitialDelay > 0 {
		select {
		case <-time.After(s.config.InitialDelay):
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.notify("")
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
