package memory

import (
	"github.com/fluxgate/fluxgate/backends"
)

func init() {
	backends.Register("memory", func(config any) (backends.Store, error) {
		if config == nil {
			return New(Config{}), nil
		}
		memConfig, ok := config.(Config)
		if !ok {
			return nil, backends.ErrInvalidConfig
		}
		return New(memConfig), nil
	})
}
