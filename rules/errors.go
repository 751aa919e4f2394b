package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is returned when a rule id has no stored rule.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleSetNotFound is returned when a rule set id has no stored rules.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrResolverNotFound is returned for an unknown key strategy id. Fatal
	// configuration error.
	ErrResolverNotFound = errors.New("key resolver not found")

	ErrRuleIDEmpty    = errors.New("rule id cannot be empty")
	ErrRuleSetIDEmpty = errors.New("rule set id cannot be empty")
)

func NewRuleSetNotFoundError(ruleSetID string) error {
	return fmt.Errorf("%w: '%s'", ErrRuleSetNotFound, ruleSetID)
}

func NewResolverNotFoundError(id string) error {
	return fmt.Errorf("%w: no resolver registered for key strategy '%s'", ErrResolverNotFound, id)
}

func NewInvalidBandError(field string, b Band) error {
	return fmt.Errorf("band %q: %s must be positive (window=%s capacity=%d)", b.Label, field, b.Window, b.Capacity)
}

func NewUnknownScopeError(scope string) error {
	return fmt.Errorf("unknown rule scope '%s'", scope)
}

func NewUnknownPolicyError(policy string) error {
	return fmt.Errorf("unknown over-limit policy '%s'", policy)
}

func NewRuleWithoutBandsError(ruleID string) error {
	return fmt.Errorf("rule '%s' must have at least one band", ruleID)
}

func NewRuleSetWithoutRulesError(ruleSetID string) error {
	return fmt.Errorf("rule set '%s' must have at least one rule", ruleSetID)
}

func NewRuleSetWithoutResolverError(ruleSetID string) error {
	return fmt.Errorf("rule set '%s' must have a key resolver", ruleSetID)
}
