package backends

// StoreFactory creates a bucket store instance with optional configuration
type StoreFactory func(config any) (Store, error)

// registeredStores holds all registered bucket store factories
var registeredStores = make(map[string]StoreFactory)

// Register registers a bucket store factory function
func Register(name string, factory StoreFactory) {
	registeredStores[name] = factory
}

// Create creates a bucket store instance with optional configuration
func Create(name string, config any) (Store, error) {
	factory, ok := registeredStores[name]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return factory(config)
}
