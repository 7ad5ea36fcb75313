package hotswap

import (
	"errors"
	"strings"
)

// Option configures a Runtime.
type Option func(*Runtime) error

var errEmptyRuntimeName = errors.New("runtime name is empty")

// WithLogger sets the logger for the runtime.
func WithLogger(logger Logger) Option {
	return func(rt *Runtime) error {
		if logger != nil {
			rt.logger = logger
		}
		return nil
	}
}

// WithRegistry runs the runtime on an existing registry.
func WithRegistry(reg *Registry) Option {
	return func(rt *Runtime) error {
		if reg != nil {
			rt.registry = reg
		}
		return nil
	}
}

// WithTransport sets where Check looks for updates.
func WithTransport(t UpdateTransport) Option {
	return func(rt *Runtime) error {
		rt.transport = t
		return nil
	}
}

// WithLinker sets how transported module sources become factories.
func WithLinker(l Linker) Option {
	return func(rt *Runtime) error {
		rt.linker = l
		return nil
	}
}

// WithRuntimeName sets the name manifests are published under. The runtime
// chunk of that name is installed from the start.
func WithRuntimeName(name string) Option {
	return func(rt *Runtime) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errEmptyRuntimeName
		}
		rt.runtimeName = name
		return nil
	}
}

// WithHash sets the build hash the process starts on.
func WithHash(hash string) Option {
	return func(rt *Runtime) error {
		rt.hash = hash
		return nil
	}
}

// WithInstalledChunks marks chunks as loaded. Only installed chunks are
// fetched when a manifest lists them.
func WithInstalledChunks(ids ...string) Option {
	return func(rt *Runtime) error {
		for _, id := range ids {
			rt.installedChunks.add(id)
		}
		return nil
	}
}

// WithErrorHook receives every callback error raised during an apply,
// including ignored ones.
func WithErrorHook(hook func(error)) Option {
	return func(rt *Runtime) error {
		rt.errorHook = hook
		return nil
	}
}

// WithObserver registers an observer for the given event types, or all
// events when none are given.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(rt *Runtime) error {
		return rt.RegisterObserver(observer, eventTypes...)
	}
}
