package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Provider from configuration.
type Factory func(cfg Config) (Provider, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// RegisterFactory makes a provider available by name.
// Providers register themselves from init.
func RegisterFactory(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if factory == nil {
		panic("provider: RegisterFactory factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("provider: RegisterFactory called twice for provider " + name)
	}
	factories[name] = factory
}

// New builds the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	mu.RLock()
	factory, ok := factories[cfg.Provider]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %q (available: %v)", cfg.Provider, List())
	}
	return factory(cfg)
}

// List returns registered provider names in sorted order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a provider is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := factories[name]
	return ok
}
