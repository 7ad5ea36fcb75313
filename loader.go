package hotswap

import (
	"fmt"
)

// ExecOptions describes one pending factory execution. Interceptors run in
// registration order before the factory and may replace Factory or Require.
type ExecOptions struct {
	ID      string
	Module  *Module
	Factory Factory
	Require RequireFunc
}

// Interceptor observes or rewrites a factory execution before it runs.
type Interceptor func(opts *ExecOptions)

// Use appends an execution interceptor. The hot interceptor installed by
// NewRuntime always runs first.
func (rt *Runtime) Use(i Interceptor) {
	rt.loaderMu.Lock()
	defer rt.loaderMu.Unlock()
	rt.interceptors = append(rt.interceptors, i)
}

// Define registers the factory for a module id.
func (rt *Runtime) Define(id string, f Factory) error {
	return rt.registry.Define(id, f)
}

// Require loads a module as a root: the module is marked as main unless it
// is being re-executed through a self-accept.
func (rt *Runtime) Require(id string) (any, error) {
	return rt.require(id)
}

func (rt *Runtime) require(id string) (any, error) {
	if cached, ok := rt.registry.Get(id); ok {
		if err := cached.Err(); err != nil {
			return nil, err
		}
		return cached.Exports, nil
	}

	factory, ok := rt.registry.Factory(id)
	if !ok {
		rt.resetForthcoming()
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}

	m := newModule(id)
	rt.registry.put(m)

	opts := &ExecOptions{
		ID:      id,
		Module:  m,
		Factory: factory,
		Require: rt.require,
	}
	for _, intercept := range rt.interceptorChain() {
		intercept(opts)
	}

	err := safeCall(func() error { return opts.Factory(m, opts.Require) })
	m.setResult(err)
	if err != nil {
		rt.logger.Debug("Module factory failed", "module", id, "error", err)
		return nil, err
	}
	return m.Exports, nil
}

func (rt *Runtime) interceptorChain() []Interceptor {
	rt.loaderMu.Lock()
	defer rt.loaderMu.Unlock()
	chain := make([]Interceptor, len(rt.interceptors))
	copy(chain, rt.interceptors)
	return chain
}

// hotInterceptor installs the hot state, assigns the forthcoming parents
// recorded by the caller's require and wraps the module's require so every
// resolution updates graph edges first.
func (rt *Runtime) hotInterceptor(opts *ExecOptions) {
	m := opts.Module

	rt.loaderMu.Lock()
	parents := rt.currentParents
	main := rt.currentChild != opts.ID
	rt.currentParents = nil
	rt.currentChild = ""
	rt.loaderMu.Unlock()

	m.Hot = newHotState(rt, m, main, rt.moduleDataFor(opts.ID))
	m.setParents(parents)
	opts.Require = rt.hotRequire(opts.Require, m)
}

func (rt *Runtime) hotRequire(next RequireFunc, me *Module) RequireFunc {
	return func(request string) (any, error) {
		if me.Hot.Active() {
			if dep, ok := rt.registry.Get(request); ok {
				dep.addParent(me.ID)
			} else {
				rt.loaderMu.Lock()
				rt.currentParents = []string{me.ID}
				rt.currentChild = request
				rt.loaderMu.Unlock()
			}
			me.addChild(request)
		} else {
			rt.logger.Warn("Unexpected require from disposed module", "module", me.ID, "request", request)
			rt.resetForthcoming()
		}
		return next(request)
	}
}

// requireSelf re-executes a self-accepted module with its previous parents
// as the forthcoming parents, keeping its main flag.
func (rt *Runtime) requireSelf(old *Module) error {
	rt.loaderMu.Lock()
	rt.currentParents = old.Parents()
	if old.Hot.IsMain() {
		rt.currentChild = ""
	} else {
		rt.currentChild = old.ID
	}
	rt.loaderMu.Unlock()

	_, err := rt.require(old.ID)
	return err
}

func (rt *Runtime) resetForthcoming() {
	rt.loaderMu.Lock()
	rt.currentParents = nil
	rt.currentChild = ""
	rt.loaderMu.Unlock()
}

// removedFactory replaces the factory of a module deleted by an update.
func (rt *Runtime) removedFactory(id string) Factory {
	return func(*Module, RequireFunc) error {
		rt.logger.Warn("Unexpected require of removed module", "module", id)
		return fmt.Errorf("%w: %s", ErrModuleRemoved, id)
	}
}
