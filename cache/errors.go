package cache

import (
	"errors"
	"fmt"
)

var ErrInvalidCacheConfig = errors.New("invalid cache configuration")

func NewInvalidCacheConfigError(field string, value int64) error {
	return fmt.Errorf("%w: invalid %s (%d)", ErrInvalidCacheConfig, field, value)
}
