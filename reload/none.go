package reload

import "context"

// NoneStrategy never fires. Rule changes are picked up only when cache
// entries age out by TTL.
type NoneStrategy struct{}

func NewNoneStrategy() *NoneStrategy {
	return &NoneStrategy{}
}

func (s *NoneStrategy) Start(context.Context) error { return nil }
func (s *NoneStrategy) Stop() error                 { return nil }
func (s *NoneStrategy) AddListener(Listener)        {}
func (s *NoneStrategy) RemoveListener(Listener)     {}
