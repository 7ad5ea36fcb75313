package hotswap

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the factory table and the cache of loaded module records.
// Factories survive disposal; records do not.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	modules   map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		modules:   make(map[string]*Module),
	}
}

// Define registers the factory for a module id, replacing any previous one.
func (r *Registry) Define(id string, f Factory) error {
	if id == "" {
		return ErrEmptyModuleID
	}
	if f == nil {
		return fmt.Errorf("define %s: %w", id, ErrNilFactory)
	}
	r.setFactory(id, f)
	return nil
}

// Factory returns the factory currently installed for id.
func (r *Registry) Factory(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// Get returns the cached record for id.
func (r *Registry) Get(id string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// IDs returns the ids of all cached records, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of cached records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

func (r *Registry) setFactory(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

func (r *Registry) put(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.ID] = m
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, id)
}
