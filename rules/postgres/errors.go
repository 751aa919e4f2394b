package postgres

import (
	"fmt"
)

func NewParseConfigError(err error) error {
	return fmt.Errorf("failed to parse connection string: %w", err)
}

func NewPoolCreateError(err error) error {
	return fmt.Errorf("failed to create connection pool: %w", err)
}

func NewPingFailedError(err error) error {
	return fmt.Errorf("failed to ping database: %w", err)
}

func NewSchemaError(err error) error {
	return fmt.Errorf("failed to create rules table: %w", err)
}

func NewQueryFailedError(op string, err error) error {
	return fmt.Errorf("%s failed: %w", op, err)
}

func NewEncodeFailedError(ruleID string, err error) error {
	return fmt.Errorf("failed to encode rule '%s': %w", ruleID, err)
}

func NewDecodeFailedError(err error) error {
	return fmt.Errorf("failed to decode stored rule: %w", err)
}
