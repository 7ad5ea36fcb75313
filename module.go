// Package hotswap provides a hot module replacement runtime for Go programs
// whose code units are loaded through its module loader.
//
// Modules are registered as factories and instantiated on first Require.
// While loading, the runtime records the parent/child edges between modules
// and attaches a HotState to every module record. When an incremental update
// arrives, the runtime resolves which loaded modules are affected, asks their
// accept handlers whether the change can be contained, disposes stale
// instances and installs the fresh factories without restarting the process.
//
// Basic usage:
//
//	tr, err := transport.NewHTTPTransport(baseURL)
//	if err != nil {
//		log.Fatal(err)
//	}
//	rt, err := hotswap.NewRuntime(hotswap.WithTransport(tr))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := rt.Define("app", appFactory); err != nil {
//		log.Fatal(err)
//	}
//	if _, err := rt.Require("app"); err != nil {
//		log.Fatal(err)
//	}
//	// later, when a new build is announced
//	outdated, err := rt.Check(ctx, &hotswap.ApplyOptions{})
package hotswap

import (
	"sort"
	"sync"
)

// RequireFunc resolves a module id to its exports, executing the module's
// factory if it has not been loaded yet.
type RequireFunc func(id string) (any, error)

// Factory builds a module instance. It receives the module record, whose
// Exports field it should populate, and the require function the module
// must use to reach its dependencies. A factory can register hot-update
// handlers through m.Hot.
type Factory func(m *Module, require RequireFunc) error

// Module is the loaded record of one code unit: its exports, the graph
// edges to the modules that required it (parents) and the modules it
// required (children), and its hot-update state.
//
// A record is created on first factory execution and evicted from the
// registry when it is disposed during an apply.
type Module struct {
	// ID is the module identifier the record is cached under.
	ID string

	// Exports holds whatever the factory chose to expose.
	Exports any

	// Hot is the per-module hot-update API. It is installed by the
	// runtime's hot interceptor before the factory runs.
	Hot *HotState

	mu       sync.RWMutex
	parents  idSet
	children idSet
	loaded   bool
	err      error
}

func newModule(id string) *Module {
	return &Module{
		ID:       id,
		parents:  make(idSet),
		children: make(idSet),
	}
}

// Parents returns the ids of modules that required this module, sorted.
func (m *Module) Parents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parents.sorted()
}

// Children returns the ids of modules this module required, sorted.
func (m *Module) Children() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.children.sorted()
}

// Loaded reports whether the factory completed without error.
func (m *Module) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Err returns the error recorded when the factory failed, if any.
func (m *Module) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *Module) setResult(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.loaded = err == nil
}

func (m *Module) setParents(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents = make(idSet, len(ids))
	for _, id := range ids {
		m.parents.add(id)
	}
}

func (m *Module) addParent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents.add(id)
}

func (m *Module) removeParent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents.remove(id)
}

func (m *Module) addChild(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children.add(id)
}

func (m *Module) removeChild(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children.remove(id)
}

// idSet is an adjacency set keyed by module id.
type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }
func (s idSet) remove(id string) { delete(s, id) }

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// orderedIDs is an insertion-ordered set of ids.
type orderedIDs struct {
	list  []string
	index idSet
}

func newOrderedIDs(ids ...string) *orderedIDs {
	o := &orderedIDs{index: make(idSet)}
	for _, id := range ids {
		o.add(id)
	}
	return o
}

func (o *orderedIDs) add(id string) bool {
	if o.index.has(id) {
		return false
	}
	o.index.add(id)
	o.list = append(o.list, id)
	return true
}

func (o *orderedIDs) has(id string) bool { return o.index.has(id) }

func (o *orderedIDs) slice() []string {
	out := make([]string, len(o.list))
	copy(out, o.list)
	return out
}

// dependencyMap maps an accepting parent to the ordered dependency ids it
// accepted during one resolution.
type dependencyMap struct {
	order []string
	deps  map[string]*orderedIDs
}

func newDependencyMap() *dependencyMap {
	return &dependencyMap{deps: make(map[string]*orderedIDs)}
}

func (d *dependencyMap) add(parent string, deps ...string) {
	set, ok := d.deps[parent]
	if !ok {
		set = newOrderedIDs()
		d.deps[parent] = set
		d.order = append(d.order, parent)
	}
	for _, dep := range deps {
		set.add(dep)
	}
}

func (d *dependencyMap) remove(parent string) {
	if _, ok := d.deps[parent]; !ok {
		return
	}
	delete(d.deps, parent)
	for i, id := range d.order {
		if id == parent {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *dependencyMap) parents() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *dependencyMap) get(parent string) []string {
	set, ok := d.deps[parent]
	if !ok {
		return nil
	}
	return set.slice()
}

func (d *dependencyMap) toMap() map[string][]string {
	out := make(map[string][]string, len(d.order))
	for _, parent := range d.order {
		out[parent] = d.deps[parent].slice()
	}
	return out
}
