package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate/backends/memory"
	"github.com/fluxgate/fluxgate/rules"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func setupLimiter(clock *fakeClock) (*Limiter, *memory.Store) {
	store := memory.New(memory.Config{Clock: clock.Now})
	return New(store, nil, nil), store
}

func ruleSetOf(id string, list ...rules.Rule) *rules.RuleSet {
	rules.SortRules(list)
	return &rules.RuleSet{
		ID:       id,
		Rules:    list,
		Resolver: rules.DispatchResolver(),
	}
}

func perIPRule(id string, priority int, bands ...rules.Band) rules.Rule {
	return rules.Rule{
		ID:            id,
		Name:          id,
		Enabled:       true,
		Scope:         rules.ScopePerIP,
		OnLimitExceed: rules.PolicyReject,
		Bands:         bands,
		RuleSetID:     "api",
		Priority:      priority,
	}
}

func ipRequest(ip string) rules.RequestContext {
	return rules.RequestContext{ClientIP: ip}
}

func TestCheckSingleBand(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 3, Label: "default"}))
	ctx := context.Background()

	for want := int64(2); want >= 0; want-- {
		result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, want, result.Remaining)
		require.NotNil(t, result.MatchedRule)
		assert.Equal(t, "r1", result.MatchedRule.ID)
		assert.Equal(t, rules.Key("10.0.0.1"), result.Key)
	}

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Equal(t, (20 * time.Second).Nanoseconds(), result.NanosToWait)
}

func TestCheckSubjectsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 1}))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = l.Check(ctx, rs, ipRequest("10.0.0.2"), 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckAllBandsMustAllow(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0,
		rules.Band{Window: time.Second, Capacity: 2, Label: "burst"},
		rules.Band{Window: time.Minute, Capacity: 5, Label: "sustained"},
	))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	assert.Equal(t, int64(1), result.Remaining)

	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	// Burst band is dry, sustained still has tokens.
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// After the burst window refills the check passes again; the refilled
	// burst band is still the tightest.
	clock.Advance(time.Second)
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	assert.Equal(t, int64(1), result.Remaining)
}

func TestCheckCompensatesEarlierBandsOnRejection(t *testing.T) {
	clock := newFakeClock()
	l, store := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0,
		rules.Band{Window: time.Minute, Capacity: 10, Label: "wide"},
		rules.Band{Window: time.Minute, Capacity: 1, Label: "narrow"},
	))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	// The narrow band rejects, so the wide band's token must come back.
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	decision, err := store.Peek(ctx, "api:r1:10.0.0.1:wide", 10, time.Minute.Nanoseconds())
	require.NoError(t, err)
	assert.Equal(t, int64(9), decision.Remaining)
}

func TestCheckRejectionReportsLongestWait(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0,
		rules.Band{Window: time.Second, Capacity: 1, Label: "burst"},
		rules.Band{Window: time.Minute, Capacity: 1, Label: "sustained"},
	))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	// Both bands are dry; the minute band dominates the wait.
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	assert.Equal(t, time.Minute.Nanoseconds(), result.NanosToWait)
}

func TestCheckMultiPermit(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 5}))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 3)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	assert.Equal(t, int64(2), result.Remaining)

	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestCheckEnforcesAllEnabledRules(t *testing.T) {
	clock := newFakeClock()
	l, store := setupLimiter(clock)
	rs := ruleSetOf("api",
		perIPRule("wide", 0, rules.Band{Window: time.Minute, Capacity: 100}),
		perIPRule("narrow", 1, rules.Band{Window: time.Minute, Capacity: 1}),
	)
	ctx := context.Background()

	// The first request consumes from every enabled rule's bucket; the
	// narrow rule is the tightest.
	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)

	decision, err := store.Peek(ctx, "api:narrow:10.0.0.1:0", 1, time.Minute.Nanoseconds())
	require.NoError(t, err)
	assert.Equal(t, int64(0), decision.Remaining)

	// The narrow rule rejects the second request even though the wide rule
	// still has tokens, and the wide rule's token comes back.
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	decision, err = store.Peek(ctx, "api:wide:10.0.0.1:0", 100, time.Minute.Nanoseconds())
	require.NoError(t, err)
	assert.Equal(t, int64(99), decision.Remaining)
}

func TestCheckReportsFirstMatchingRule(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)

	perUser := rules.Rule{
		ID:            "user",
		Enabled:       true,
		Scope:         rules.ScopePerUser,
		OnLimitExceed: rules.PolicyReject,
		Bands:         []rules.Band{{Window: time.Minute, Capacity: 100}},
		RuleSetID:     "api",
		Priority:      0,
	}
	rs := ruleSetOf("api", perUser, perIPRule("ip", 1, rules.Band{Window: time.Minute, Capacity: 5}))
	ctx := context.Background()

	// Both rules match and both are enforced; the result reports the lowest
	// priority rule and the tightest remaining count.
	result, err := l.Check(ctx, rs, rules.RequestContext{ClientIP: "10.0.0.1", UserID: "u1"}, 1)
	require.NoError(t, err)
	require.NotNil(t, result.MatchedRule)
	assert.Equal(t, "user", result.MatchedRule.ID)
	assert.Equal(t, rules.Key("u1"), result.Key)
	assert.Equal(t, int64(4), result.Remaining)

	// Without a user id the per-user rule has no subject and is skipped; the
	// per-ip rule is still enforced.
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.NotNil(t, result.MatchedRule)
	assert.Equal(t, "ip", result.MatchedRule.ID)
	assert.Equal(t, int64(3), result.Remaining)
}

func TestCheckRejectionAggregatesWaitAcrossRules(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api",
		perIPRule("burst", 0, rules.Band{Window: time.Second, Capacity: 1}),
		perIPRule("sustained", 1, rules.Band{Window: time.Minute, Capacity: 1}),
	)
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	// Both rules are dry; the minute rule dominates the wait even though the
	// second rule never got to consume.
	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	assert.Equal(t, time.Minute.Nanoseconds(), result.NanosToWait)
}

func TestCheckRejectsInvalidSubject(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)

	rs := &rules.RuleSet{
		ID:    "api",
		Rules: []rules.Rule{perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 1})},
		Resolver: func(rules.RequestContext, rules.Rule) (rules.Key, bool, error) {
			return "bad subject", true, nil
		},
	}

	_, err := l.Check(context.Background(), rs, ipRequest("10.0.0.1"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestCheckSkipsDisabledRules(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)

	disabled := perIPRule("off", 0, rules.Band{Window: time.Minute, Capacity: 1})
	disabled.Enabled = false
	rs := ruleSetOf("api", disabled, perIPRule("on", 1, rules.Band{Window: time.Minute, Capacity: 5}))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.NotNil(t, result.MatchedRule)
	assert.Equal(t, "on", result.MatchedRule.ID)
}

func TestCheckNoApplicableRuleAllowsWithoutRule(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)

	perUser := perIPRule("user", 0, rules.Band{Window: time.Minute, Capacity: 1})
	perUser.Scope = rules.ScopePerUser
	rs := ruleSetOf("api", perUser)
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Nil(t, result.MatchedRule)
	assert.Equal(t, rules.RemainingUnlimited, result.Remaining)
}

func TestCheckUnknownKeyStrategyFails(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)

	rule := perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 1})
	rule.KeyStrategyID = "no-such-strategy"
	rs := ruleSetOf("api", rule)

	_, err := l.Check(context.Background(), rs, ipRequest("10.0.0.1"), 1)
	assert.ErrorIs(t, err, rules.ErrResolverNotFound)
}

func TestPeekDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 2}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := l.Peek(ctx, rs, ipRequest("10.0.0.1"))
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(2), result.Remaining)
	}

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 2)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = l.Peek(ctx, rs, ipRequest("10.0.0.1"))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Positive(t, result.NanosToWait)
}

func TestResetClearsRuleSetBuckets(t *testing.T) {
	clock := newFakeClock()
	l, _ := setupLimiter(clock)
	rs := ruleSetOf("api", perIPRule("r1", 0, rules.Band{Window: time.Minute, Capacity: 1}))
	ctx := context.Background()

	result, err := l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	deleted, err := l.Reset(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	result, err = l.Check(ctx, rs, ipRequest("10.0.0.1"), 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestBucketKeys(t *testing.T) {
	rule := perIPRule("r1", 0,
		rules.Band{Window: time.Second, Capacity: 1, Label: "burst"},
		rules.Band{Window: time.Minute, Capacity: 10},
	)

	keys := bucketKeys("api", rule, "10.0.0.1")
	assert.Equal(t, []string{
		"api:r1:10.0.0.1:burst",
		"api:r1:10.0.0.1:1",
	}, keys)
}
