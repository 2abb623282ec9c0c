package ai

import (
	"fmt"
	"sort"
	"sync"
)

// Registry stores all configured backends by name
type Registry struct {
	backends map[string]Backend
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry
func (r *Registry) Register(backend Backend) error {
	if backend == nil {
		return fmt.Errorf("backend is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := backend.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend %s already registered", name)
	}

	r.backends[name] = backend
	return nil
}

// Get returns the backend by name
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	return b, ok
}

// Names returns registered backend names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered backends, ordered by name
func (r *Registry) List() []Backend {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Backend, 0, len(names))
	for _, name := range names {
		out = append(out, r.backends[name])
	}
	return out
}
