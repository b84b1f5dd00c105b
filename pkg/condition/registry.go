package condition

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a condition from its configuration.
type Factory func(cfg Config) Condition

// Registry maps typenames to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under typename.
//
// Returns:
//   - error: When typename is empty or already registered
func (r *Registry) Register(typename string, f Factory) error {
	if typename == "" {
		return fmt.Errorf("condition typename is required")
	}
	if f == nil {
		return fmt.Errorf("condition %s: nil factory", typename)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typename]; exists {
		return fmt.Errorf("condition %s already registered", typename)
	}
	r.factories[typename] = f
	return nil
}

// Has reports whether typename is registered.
func (r *Registry) Has(typename string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typename]
	return ok
}

// Typenames returns the registered typenames, sorted.
func (r *Registry) Typenames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the condition for cfg.Typename.
func (r *Registry) Create(cfg Config) (Condition, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Typename]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown condition typename %q for %s", cfg.Typename, cfg.Name)
	}
	return f(cfg), nil
}
