// Package memory provides a map-backed rule store for tests and
// single-instance deployments without a control plane database.
package memory

import (
	"context"
	"sync"

	"github.com/fluxgate/fluxgate/rules"
)

type Store struct {
	mu    sync.RWMutex
	rules map[string]rules.Rule
}

func New() *Store {
	return &Store{
		rules: make(map[string]rules.Rule),
	}
}

func (s *Store) FindByID(ctx context.Context, ruleID string) (rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return rules.Rule{}, rules.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Store) FindByRuleSetID(ctx context.Context, ruleSetID string) ([]rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []rules.Rule
	for _, rule := range s.rules {
		if rule.RuleSetID == ruleSetID {
			list = append(list, rule)
		}
	}
	if len(list) == 0 {
		return nil, rules.ErrRuleSetNotFound
	}

	rules.SortRules(list)
	return list, nil
}

func (s *Store) FindAll(ctx context.Context) ([]rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]rules.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		list = append(list, rule)
	}

	rules.SortRules(list)
	return list, nil
}

func (s *Store) Save(ctx context.Context, rule rules.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[rule.ID] = rule
	return nil
}

func (s *Store) DeleteByID(ctx context.Context, ruleID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rules[ruleID]
	delete(s.rules, ruleID)
	return ok, nil
}

func (s *Store) DeleteByRuleSetID(ctx context.Context, ruleSetID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rule := range s.rules {
		if rule.RuleSetID == ruleSetID {
			delete(s.rules, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Close() error {
	return nil
}
