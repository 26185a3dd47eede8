package model

import (
	"fmt"
	"sync"
)

// Registry holds the named generation endpoints the router can select from.
// Registration is thread-safe; complete registration during setup before
// serving turns.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register makes a model available under a configured identifier. An existing
// entry with the same name is replaced.
func (r *Registry) Register(name string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Get retrieves a registered model by name.
func (r *Registry) Get(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Resolve returns the model for name or an error naming the missing endpoint.
func (r *Registry) Resolve(name string) (Model, error) {
	m, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("model %s not registered", name)
	}
	return m, nil
}

// Names returns the registered endpoint identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}
