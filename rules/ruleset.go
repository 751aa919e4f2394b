package rules

import (
	"time"
)

// RuleSet is a named collection of rules sharing one key resolver; the unit
// of caching and hot reload. Immutable once constructed: reload produces a
// new RuleSet, never mutates a cached one in place.
type RuleSet struct {
	ID          string
	Description string
	Rules       []Rule
	Resolver    Resolver

	// Recorder receives check outcomes, best effort. Nil disables recording.
	Recorder MetricsRecorder
}

func (rs RuleSet) Validate() error {
	if rs.ID == "" {
		return ErrRuleSetIDEmpty
	}
	if len(rs.Rules) == 0 {
		return NewRuleSetWithoutRulesError(rs.ID)
	}
	if rs.Resolver == nil {
		return NewRuleSetWithoutResolverError(rs.ID)
	}
	for _, rule := range rs.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MetricsRecorder receives per-check outcomes. Implementations must be safe
// for concurrent use and must not block the request path.
type MetricsRecorder interface {
	RecordCheck(ruleSetID string, result Result)
}

// RemainingUnlimited is the Remaining value of a result produced without any
// applicable rule.
const RemainingUnlimited int64 = -1

// Result is the outcome of one rate limit check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the post-consume token count of the tightest allowed
	// band, the pre-consume view of the rejecting band on rejection, or
	// RemainingUnlimited when no rule applied.
	Remaining int64

	// NanosToWait is the longest wait across rejecting bands. Zero when
	// allowed.
	NanosToWait int64

	// ResetTimeMillis is when the governing bucket would be full again.
	ResetTimeMillis int64

	// MatchedRule is the first rule that applied. Nil when no rule did.
	MatchedRule *Rule

	// Key is the resolved subject key. Always set on rejection.
	Key Key
}

// AllowedWithoutRule is the fail-open outcome: the request proceeds and no
// rule is attached.
func AllowedWithoutRule() Result {
	return Result{
		Allowed:   true,
		Remaining: RemainingUnlimited,
	}
}

// RetryAfter converts NanosToWait to a duration, for Retry-After headers.
func (r Result) RetryAfter() time.Duration {
	return time.Duration(r.NanosToWait)
}
