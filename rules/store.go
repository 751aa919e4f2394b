package rules

import (
	"context"
	"sort"
)

// Store defines persistent CRUD over rules keyed by rule id.
//
// Network and transient failures are marked retryable (backends.IsRetryable);
// schema and validation failures are fatal.
type Store interface {
	// FindByID returns the rule with the given id, or ErrRuleNotFound.
	FindByID(ctx context.Context, ruleID string) (Rule, error)

	// FindByRuleSetID returns the rule set's rules in deterministic order:
	// by priority ascending, then rule id. An unknown rule set id yields
	// ErrRuleSetNotFound.
	FindByRuleSetID(ctx context.Context, ruleSetID string) ([]Rule, error)

	// FindAll returns every stored rule in deterministic order.
	FindAll(ctx context.Context) ([]Rule, error)

	// Save upserts the rule by its id.
	Save(ctx context.Context, rule Rule) error

	// DeleteByID removes the rule and reports whether it existed.
	DeleteByID(ctx context.Context, ruleID string) (bool, error)

	// DeleteByRuleSetID removes all rules of the rule set and returns the
	// number removed.
	DeleteByRuleSetID(ctx context.Context, ruleSetID string) (int64, error)

	// Close releases resources used by the store.
	Close() error
}

// SortRules orders rules by priority ascending, then rule id ascending.
// Stores that cannot index priority sort client-side with this to keep
// cache reloads reproducible.
func SortRules(list []Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].ID < list[j].ID
	})
}
