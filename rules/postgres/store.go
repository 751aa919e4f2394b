// Package postgres stores rules as JSONB documents in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxgate/fluxgate/rules"
)

type Config struct {
	ConnString string
	MaxConns   int32
	MinConns   int32
}

type Store struct {
	pool *pgxpool.Pool
}

func New(config Config) (*Store, error) {
	if config.MaxConns == 0 {
		config.MaxConns = 10
	}
	if config.MinConns == 0 {
		config.MinConns = 2
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, NewParseConfigError(err)
	}

	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, NewPoolCreateError(err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, classify(NewPingFailedError(err))
	}

	if err := createTable(context.Background(), pool); err != nil {
		pool.Close()
		return nil, NewSchemaError(err)
	}

	return &Store{pool: pool}, nil
}

func createTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fluxgate_rules (
			id TEXT PRIMARY KEY,
			rule_set_id TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			doc JSONB NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS fluxgate_rules_rule_set_id_idx
		ON fluxgate_rules (rule_set_id)
	`)
	return err
}

func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) FindByID(ctx context.Context, ruleID string) (rules.Rule, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM fluxgate_rules WHERE id = $1
	`, ruleID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return rules.Rule{}, rules.ErrRuleNotFound
	}
	if err != nil {
		return rules.Rule{}, classify(NewQueryFailedError("find rule", err))
	}

	return decodeRule(raw)
}

func (s *Store) FindByRuleSetID(ctx context.Context, ruleSetID string) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM fluxgate_rules
		WHERE rule_set_id = $1
		ORDER BY priority, id
	`, ruleSetID)
	if err != nil {
		return nil, classify(NewQueryFailedError("find rule set", err))
	}

	list, err := collectRules(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, rules.ErrRuleSetNotFound
	}

	// The SQL already orders, but re-sorting client-side keeps reloads
	// reproducible even against a store that cannot index priority.
	rules.SortRules(list)
	return list, nil
}

func (s *Store) FindAll(ctx context.Context) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM fluxgate_rules ORDER BY priority, id
	`)
	if err != nil {
		return nil, classify(NewQueryFailedError("find all rules", err))
	}

	list, err := collectRules(rows)
	if err != nil {
		return nil, err
	}

	rules.SortRules(list)
	return list, nil
}

func (s *Store) Save(ctx context.Context, rule rules.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(toDocument(rule))
	if err != nil {
		return NewEncodeFailedError(rule.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fluxgate_rules (id, rule_set_id, priority, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			rule_set_id = EXCLUDED.rule_set_id,
			priority = EXCLUDED.priority,
			doc = EXCLUDED.doc
	`, rule.ID, rule.RuleSetID, rule.Priority, raw)
	if err != nil {
		return classify(NewQueryFailedError("save rule", err))
	}
	return nil
}

func (s *Store) DeleteByID(ctx context.Context, ruleID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fluxgate_rules WHERE id = $1`, ruleID)
	if err != nil {
		return false, classify(NewQueryFailedError("delete rule", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteByRuleSetID(ctx context.Context, ruleSetID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fluxgate_rules WHERE rule_set_id = $1`, ruleSetID)
	if err != nil {
		return 0, classify(NewQueryFailedError("delete rule set", err))
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func collectRules(rows pgx.Rows) ([]rules.Rule, error) {
	defer rows.Close()

	var list []rules.Rule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify(NewQueryFailedError("scan rule", err))
		}
		rule, err := decodeRule(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(NewQueryFailedError("iterate rules", err))
	}
	return list, nil
}

func decodeRule(raw []byte) (rules.Rule, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// A document that no longer unmarshals is a schema mismatch, not a
		// transient failure.
		return rules.Rule{}, NewDecodeFailedError(err)
	}
	return fromDocument(doc), nil
}
