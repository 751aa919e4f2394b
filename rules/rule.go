package rules

import (
	"time"
)

// Scope identifies which attribute of the request context owns a bucket.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopePerIP     Scope = "per-ip"
	ScopePerUser   Scope = "per-user"
	ScopePerAPIKey Scope = "per-api-key"
	ScopeCustom    Scope = "custom"
)

// Valid reports whether the scope is one of the known values.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopePerIP, ScopePerUser, ScopePerAPIKey, ScopeCustom:
		return true
	}
	return false
}

// OverLimitPolicy controls what a caller should do with a rejected request.
type OverLimitPolicy string

const (
	// PolicyReject surfaces the rejection immediately.
	PolicyReject OverLimitPolicy = "reject"

	// PolicyWaitForRefill hints that the caller layer may sleep up to a
	// configured bound and retry once. The engine itself always returns the
	// rejection with NanosToWait; the policy only governs the caller side.
	PolicyWaitForRefill OverLimitPolicy = "wait-for-refill"
)

// Valid reports whether the policy is one of the known values.
func (p OverLimitPolicy) Valid() bool {
	return p == PolicyReject || p == PolicyWaitForRefill
}

// Band is one (window, capacity) pair. A rule enforces the conjunction of
// its bands. Immutable once constructed.
type Band struct {
	// Window is the refill window. Capacity tokens refill per Window.
	Window time.Duration

	// Capacity is the maximum token count of the band's buckets.
	Capacity int64

	// Label names the band for diagnostics and key construction. Optional;
	// unlabeled bands are keyed by their index.
	Label string
}

func (b Band) Validate() error {
	if b.Window <= 0 {
		return NewInvalidBandError("window", b)
	}
	if b.Capacity <= 0 {
		return NewInvalidBandError("capacity", b)
	}
	return nil
}

// WindowNanos returns the band window in nanoseconds, the unit the bucket
// store operates in.
func (b Band) WindowNanos() int64 {
	return int64(b.Window)
}

// Rule is one rate limiting rule. Immutable once constructed.
type Rule struct {
	ID            string
	Name          string
	Enabled       bool
	Scope         Scope
	KeyStrategyID string
	OnLimitExceed OverLimitPolicy
	Bands         []Band
	RuleSetID     string
	Priority      int

	// Attributes is a free-form map carried through storage untouched.
	// Opaque to the engine.
	Attributes map[string]any
}

func (r Rule) Validate() error {
	if r.ID == "" {
		return ErrRuleIDEmpty
	}
	if !r.Scope.Valid() {
		return NewUnknownScopeError(string(r.Scope))
	}
	if !r.OnLimitExceed.Valid() {
		return NewUnknownPolicyError(string(r.OnLimitExceed))
	}
	if len(r.Bands) == 0 {
		return NewRuleWithoutBandsError(r.ID)
	}
	for _, band := range r.Bands {
		if err := band.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResolverID returns the key strategy the rule resolves subjects with:
// the explicit KeyStrategyID when set, otherwise the scope default.
func (r Rule) ResolverID() string {
	if r.KeyStrategyID != "" {
		return r.KeyStrategyID
	}
	return string(r.Scope)
}
