package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate/rules"
)

func testRule(id, ruleSetID string, priority int) rules.Rule {
	return rules.Rule{
		ID:            id,
		Name:          id,
		Enabled:       true,
		Scope:         rules.ScopePerIP,
		OnLimitExceed: rules.PolicyReject,
		Bands:         []rules.Band{{Window: time.Minute, Capacity: 5}},
		RuleSetID:     ruleSetID,
		Priority:      priority,
	}
}

func TestSaveAndFindByID(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRule("r1", "api", 0)))

	rule, err := store.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rule.ID)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, rules.ErrRuleNotFound)
}

func TestSaveRejectsInvalidRule(t *testing.T) {
	t.Parallel()

	store := New()
	bad := testRule("r1", "api", 0)
	bad.Bands = nil

	assert.Error(t, store.Save(context.Background(), bad))
}

func TestSaveUpserts(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRule("r1", "api", 0)))

	updated := testRule("r1", "api", 0)
	updated.Name = "renamed"
	require.NoError(t, store.Save(ctx, updated))

	rule, err := store.FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", rule.Name)
}

func TestFindByRuleSetIDOrdering(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRule("b", "api", 1)))
	require.NoError(t, store.Save(ctx, testRule("a", "api", 2)))
	require.NoError(t, store.Save(ctx, testRule("c", "api", 1)))
	require.NoError(t, store.Save(ctx, testRule("z", "other", 0)))

	list, err := store.FindByRuleSetID(ctx, "api")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
	assert.Equal(t, "a", list[2].ID)
}

func TestFindByRuleSetIDMissing(t *testing.T) {
	t.Parallel()

	store := New()
	_, err := store.FindByRuleSetID(context.Background(), "nope")
	assert.ErrorIs(t, err, rules.ErrRuleSetNotFound)
}

func TestDeleteByID(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRule("r1", "api", 0)))

	existed, err := store.DeleteByID(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.DeleteByID(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestDeleteByRuleSetID(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRule("r1", "api", 0)))
	require.NoError(t, store.Save(ctx, testRule("r2", "api", 0)))
	require.NoError(t, store.Save(ctx, testRule("r3", "other", 0)))

	deleted, err := store.DeleteByRuleSetID(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "r3", all[0].ID)
}
