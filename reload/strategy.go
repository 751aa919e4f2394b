// Package reload keeps instance-local rule caches coherent with the rule
// store. A strategy detects external rule changes, by polling or by a pub/sub
// channel on the shared store, and fires registered listeners.
package reload

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// stopBudget bounds how long Stop waits for the background task to finish.
const stopBudget = 5 * time.Second

// Listener receives rule-change notifications. An empty rule set id means
// "everything may have changed". Implementations must be comparable so they
// can be removed again.
type Listener interface {
	OnRuleChanged(ruleSetID string)
}

// Strategy detects rule changes and fans them out to listeners. Start and
// Stop are idempotent; listeners may be added and removed at any time.
type Strategy interface {
	Start(ctx context.Context) error
	Stop() error
	AddListener(l Listener)
	RemoveListener(l Listener)
}

// notifier is the shared listener fan-out. A panicking or failing listener is
// isolated: it is logged and the remaining listeners still run.
type notifier struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *slog.Logger
}

func newNotifier(logger *slog.Logger) *notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &notifier{logger: logger}
}

func (n *notifier) AddListener(l Listener) {
	if l == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *notifier) RemoveListener(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.listeners {
		if existing == l {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

func (n *notifier) notify(ruleSetID string) {
	n.mu.RLock()
	snapshot := make([]Listener, len(n.listeners))
	copy(snapshot, n.listeners)
	n.mu.RUnlock()

	for _, l := range snapshot {
		n.notifyOne(l, ruleSetID)
	}
}

func (n *notifier) notifyOne(l Listener, ruleSetID string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("reload listener panicked", "ruleSetId", ruleSetID, "panic", r)
		}
	}()
	l.OnRuleChanged(ruleSetID)
}
