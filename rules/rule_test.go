package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() Rule {
	return Rule{
		ID:            "r1",
		Name:          "basic",
		Enabled:       true,
		Scope:         ScopePerIP,
		OnLimitExceed: PolicyReject,
		Bands:         []Band{{Window: time.Minute, Capacity: 5}},
		RuleSetID:     "api",
	}
}

func TestRuleValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validRule().Validate())
	})

	t.Run("empty id", func(t *testing.T) {
		t.Parallel()
		r := validRule()
		r.ID = ""
		assert.ErrorIs(t, r.Validate(), ErrRuleIDEmpty)
	})

	t.Run("unknown scope", func(t *testing.T) {
		t.Parallel()
		r := validRule()
		r.Scope = "per-planet"
		assert.Error(t, r.Validate())
	})

	t.Run("unknown policy", func(t *testing.T) {
		t.Parallel()
		r := validRule()
		r.OnLimitExceed = "explode"
		assert.Error(t, r.Validate())
	})

	t.Run("no bands", func(t *testing.T) {
		t.Parallel()
		r := validRule()
		r.Bands = nil
		assert.Error(t, r.Validate())
	})

	t.Run("bad band", func(t *testing.T) {
		t.Parallel()
		r := validRule()
		r.Bands = []Band{{Window: 0, Capacity: 5}}
		assert.Error(t, r.Validate())

		r.Bands = []Band{{Window: time.Second, Capacity: 0}}
		assert.Error(t, r.Validate())
	})
}

func TestRuleResolverID(t *testing.T) {
	t.Parallel()

	r := validRule()
	assert.Equal(t, "per-ip", r.ResolverID())

	r.KeyStrategyID = "tenant-header"
	assert.Equal(t, "tenant-header", r.ResolverID())
}

func TestRuleSetValidate(t *testing.T) {
	t.Parallel()

	rs := RuleSet{
		ID:       "api",
		Rules:    []Rule{validRule()},
		Resolver: DispatchResolver(),
	}
	require.NoError(t, rs.Validate())

	t.Run("no rules", func(t *testing.T) {
		t.Parallel()
		bad := rs
		bad.Rules = nil
		assert.Error(t, bad.Validate())
	})

	t.Run("nil resolver", func(t *testing.T) {
		t.Parallel()
		bad := rs
		bad.Resolver = nil
		assert.Error(t, bad.Validate())
	})

	t.Run("empty id", func(t *testing.T) {
		t.Parallel()
		bad := rs
		bad.ID = ""
		assert.ErrorIs(t, bad.Validate(), ErrRuleSetIDEmpty)
	})
}

func TestSortRules(t *testing.T) {
	t.Parallel()

	list := []Rule{
		{ID: "c", Priority: 1},
		{ID: "a", Priority: 2},
		{ID: "b", Priority: 1},
	}
	SortRules(list)

	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestAllowedWithoutRule(t *testing.T) {
	t.Parallel()

	result := AllowedWithoutRule()
	assert.True(t, result.Allowed)
	assert.Equal(t, RemainingUnlimited, result.Remaining)
	assert.Nil(t, result.MatchedRule)
	assert.Zero(t, result.NanosToWait)
}
