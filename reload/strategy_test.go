package reload

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) OnRuleChanged(ruleSetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ruleSetID)
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type panickyListener struct{}

func (panickyListener) OnRuleChanged(string) {
	panic("listener bug")
}

func TestNotifierFansOut(t *testing.T) {
	t.Parallel()

	n := newNotifier(nil)
	a := &recordingListener{}
	b := &recordingListener{}
	n.AddListener(a)
	n.AddListener(b)

	n.notify("api")
	n.notify("")

	assert.Equal(t, []string{"api", ""}, a.Events())
	assert.Equal(t, []string{"api", ""}, b.Events())
}

func TestNotifierIsolatesPanickingListener(t *testing.T) {
	t.Parallel()

	n := newNotifier(nil)
	n.AddListener(panickyListener{})
	after := &recordingListener{}
	n.AddListener(after)

	assert.NotPanics(t, func() { n.notify("api") })
	assert.Equal(t, []string{"api"}, after.Events())
}

func TestNotifierRemoveListener(t *testing.T) {
	t.Parallel()

	n := newNotifier(nil)
	a := &recordingListener{}
	b := &recordingListener{}
	n.AddListener(a)
	n.AddListener(b)

	n.RemoveListener(a)
	n.notify("api")

	assert.Empty(t, a.Events())
	assert.Equal(t, []string{"api"}, b.Events())

	// Removing twice is harmless.
	n.RemoveListener(a)
}

func TestNotifierIgnoresNilListener(t *testing.T) {
	t.Parallel()

	n := newNotifier(nil)
	n.AddListener(nil)
	assert.NotPanics(t, func() { n.notify("api") })
}
