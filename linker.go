package hotswap

import (
	"fmt"
	"sync"

	"github.com/GoCodeAlone/hotswap/transport"
)

// Linker turns transported module sources into executable factories.
type Linker interface {
	Link(id string, src transport.ModuleSource) (Factory, error)
	LinkRuntime(name string) (RuntimeCallback, error)
}

type catalogKey struct {
	id      string
	version string
}

// Catalog is a Linker over factories compiled into the process ahead of
// time. Chunks select a build by module id and version.
type Catalog struct {
	mu        sync.RWMutex
	factories map[catalogKey]Factory
	runtime   map[string]RuntimeCallback
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[catalogKey]Factory),
		runtime:   make(map[string]RuntimeCallback),
	}
}

// Register makes factory available for module id at version.
func (c *Catalog) Register(id, version string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[catalogKey{id: id, version: version}] = factory
}

// RegisterRuntime makes a runtime patch available by name.
func (c *Catalog) RegisterRuntime(name string, callback RuntimeCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runtime[name] = callback
}

// Link implements Linker.
func (c *Catalog) Link(id string, src transport.ModuleSource) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[catalogKey{id: id, version: src.Version}]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrFactoryNotInCatalog, id, src.Version)
	}
	return f, nil
}

// LinkRuntime implements Linker.
func (c *Catalog) LinkRuntime(name string) (RuntimeCallback, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cb, ok := c.runtime[name]
	if !ok {
		return nil, fmt.Errorf("%w: runtime %s", ErrFactoryNotInCatalog, name)
	}
	return cb, nil
}
