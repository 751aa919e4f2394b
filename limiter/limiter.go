// Package limiter evaluates rule sets against the bucket store: every enabled
// rule whose resolver yields a subject is enforced, every band of every such
// rule must allow, and partial consumption is rolled back when any band
// rejects.
package limiter

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/fluxgate/fluxgate/backends"
	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/rules"
	"github.com/fluxgate/fluxgate/utils"
	"github.com/fluxgate/fluxgate/utils/builderpool"
)

// Limiter runs rate limit decisions over one bucket store. Store calls go
// through the resilience executor when one is set.
type Limiter struct {
	store    backends.Store
	executor *resilience.Executor
	logger   *slog.Logger
}

// New creates a limiter over the given bucket store. executor and logger may
// be nil.
func New(store backends.Store, executor *resilience.Executor, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:    store,
		executor: executor,
		logger:   logger,
	}
}

// match is one enabled rule the request falls under, with its resolved
// subject and precomputed per-band bucket keys.
type match struct {
	rule    *rules.Rule
	subject rules.Key
	keys    []string
}

// consumedBand records one successful consume so it can be compensated if a
// later band rejects.
type consumedBand struct {
	key      string
	capacity int64
}

// Check evaluates the rule set for the request: every enabled rule with a
// subject is enforced, and permits tokens are consumed from every band of
// every such rule. All bands of all rules must allow; on the first rejecting
// band, tokens already taken for this request are returned.
//
// A request no rule applies to is allowed without a rule. Store errors are
// returned to the caller, which owns the fail-open decision.
func (l *Limiter) Check(ctx context.Context, rs *rules.RuleSet, rctx rules.RequestContext, permits int64) (rules.Result, error) {
	matches, err := l.match(rs, rctx)
	if err != nil {
		return rules.Result{}, err
	}
	if len(matches) == 0 {
		return rules.AllowedWithoutRule(), nil
	}

	var consumed []consumedBand
	minRemaining := int64(-1)
	var resetMillis int64
	for mi, m := range matches {
		for bi, band := range m.rule.Bands {
			decision, err := l.consume(ctx, m.keys[bi], band, permits)
			if err != nil {
				l.compensate(ctx, consumed, permits)
				return rules.Result{}, err
			}
			if !decision.Allowed {
				l.compensate(ctx, consumed, permits)
				return l.rejection(ctx, matches, mi, bi, decision), nil
			}
			consumed = append(consumed, consumedBand{key: m.keys[bi], capacity: band.Capacity})
			if minRemaining < 0 || decision.Remaining < minRemaining {
				minRemaining = decision.Remaining
				resetMillis = decision.ResetTimeMillis
			}
		}
	}

	return rules.Result{
		Allowed:         true,
		Remaining:       minRemaining,
		ResetTimeMillis: resetMillis,
		MatchedRule:     matches[0].rule,
		Key:             matches[0].subject,
	}, nil
}

// Peek reports what Check would decide for a single permit without consuming
// anything.
func (l *Limiter) Peek(ctx context.Context, rs *rules.RuleSet, rctx rules.RequestContext) (rules.Result, error) {
	matches, err := l.match(rs, rctx)
	if err != nil {
		return rules.Result{}, err
	}
	if len(matches) == 0 {
		return rules.AllowedWithoutRule(), nil
	}

	result := rules.Result{
		Allowed:     true,
		Remaining:   -1,
		MatchedRule: matches[0].rule,
		Key:         matches[0].subject,
	}
	for _, m := range matches {
		for i, band := range m.rule.Bands {
			decision, err := l.peek(ctx, m.keys[i], band)
			if err != nil {
				return rules.Result{}, err
			}
			if !decision.Allowed {
				result.Allowed = false
				if decision.NanosToWait > result.NanosToWait {
					result.NanosToWait = decision.NanosToWait
					result.ResetTimeMillis = decision.ResetTimeMillis
				}
			}
			if result.Remaining < 0 || decision.Remaining < result.Remaining {
				result.Remaining = decision.Remaining
				if result.Allowed {
					result.ResetTimeMillis = decision.ResetTimeMillis
				}
			}
		}
	}
	return result, nil
}

// Reset deletes every bucket belonging to the rule set and returns the number
// removed.
func (l *Limiter) Reset(ctx context.Context, ruleSetID string) (int64, error) {
	return resilience.ExecuteValue(ctx, l.executor, "bucket.resetByPrefix",
		func(ctx context.Context) (int64, error) {
			return l.store.ResetByPrefix(ctx, ruleSetID+":")
		})
}

// match returns every enabled rule whose resolver yields a subject, in
// priority order. A rule with no subject for this request neither allows nor
// rejects; it is skipped.
func (l *Limiter) match(rs *rules.RuleSet, rctx rules.RequestContext) ([]match, error) {
	var matches []match
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		if !rule.Enabled {
			continue
		}
		subject, ok, err := rs.Resolver(rctx, *rule)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := utils.ValidateSubject(string(subject)); err != nil {
			return nil, err
		}
		matches = append(matches, match{
			rule:    rule,
			subject: subject,
			keys:    bucketKeys(rs.ID, *rule, string(subject)),
		})
	}
	return matches, nil
}

// rejection builds the rejected result when matches[mi].rule.Bands[bi]
// rejected, folding in the wait of any unreached band that would also reject.
// The extra peeks are best effort.
func (l *Limiter) rejection(ctx context.Context, matches []match, mi, bi int, decision backends.Decision) rules.Result {
	result := rules.Result{
		Allowed:         false,
		Remaining:       decision.Remaining,
		NanosToWait:     decision.NanosToWait,
		ResetTimeMillis: decision.ResetTimeMillis,
		MatchedRule:     matches[0].rule,
		Key:             matches[0].subject,
	}

	for mj := mi; mj < len(matches); mj++ {
		m := matches[mj]
		start := 0
		if mj == mi {
			start = bi + 1
		}
		for bj := start; bj < len(m.rule.Bands); bj++ {
			peeked, err := l.peek(ctx, m.keys[bj], m.rule.Bands[bj])
			if err != nil {
				l.logger.Debug("band peek failed during rejection", "key", m.keys[bj], "error", err)
				continue
			}
			if peeked.Allowed {
				continue
			}
			if peeked.NanosToWait > result.NanosToWait {
				result.NanosToWait = peeked.NanosToWait
				result.ResetTimeMillis = peeked.ResetTimeMillis
			}
			if peeked.Remaining < result.Remaining {
				result.Remaining = peeked.Remaining
			}
		}
	}
	return result
}

// compensate returns permits tokens to every consumed band bucket. Failures
// only over-count the subject, so they are logged and swallowed.
func (l *Limiter) compensate(ctx context.Context, consumed []consumedBand, permits int64) {
	for _, b := range consumed {
		err := l.executor.Do(ctx, "bucket.compensate", func(ctx context.Context) error {
			return l.store.Compensate(ctx, b.key, b.capacity, permits)
		})
		if err != nil {
			l.logger.Warn("band compensation failed, subject temporarily over-counted",
				"key", b.key, "permits", permits, "error", err)
		}
	}
}

func (l *Limiter) consume(ctx context.Context, key string, band rules.Band, permits int64) (backends.Decision, error) {
	return resilience.ExecuteValue(ctx, l.executor, "bucket.consume",
		func(ctx context.Context) (backends.Decision, error) {
			return l.store.Consume(ctx, key, band.Capacity, band.WindowNanos(), permits)
		})
}

func (l *Limiter) peek(ctx context.Context, key string, band rules.Band) (backends.Decision, error) {
	return resilience.ExecuteValue(ctx, l.executor, "bucket.peek",
		func(ctx context.Context) (backends.Decision, error) {
			return l.store.Peek(ctx, key, band.Capacity, band.WindowNanos())
		})
}

// bucketKeys derives the per-band bucket keys for one rule and subject. Bands
// without a label fall back to their index so keys stay distinct.
func bucketKeys(ruleSetID string, rule rules.Rule, subject string) []string {
	keys := make([]string, len(rule.Bands))
	for i, band := range rule.Bands {
		sb := builderpool.Get()
		sb.WriteString(ruleSetID)
		sb.WriteByte(':')
		sb.WriteString(rule.ID)
		sb.WriteByte(':')
		sb.WriteString(subject)
		sb.WriteByte(':')
		if band.Label != "" {
			sb.WriteString(band.Label)
		} else {
			sb.WriteString(strconv.Itoa(i))
		}
		keys[i] = sb.String()
		builderpool.Put(sb)
	}
	return keys
}
