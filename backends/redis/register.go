package redis

import (
	"github.com/fluxgate/fluxgate/backends"
)

func init() {
	backends.Register("redis", func(config any) (backends.Store, error) {
		redisConfig, ok := config.(Config)
		if !ok {
			return nil, backends.ErrInvalidConfig
		}
		if redisConfig.Addr == "" {
			return nil, backends.ErrInvalidConfig
		}
		return New(redisConfig)
	})
}
