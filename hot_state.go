package hotswap

import (
	"context"
	"sync"
)

// HandlerID identifies a registered dispose or status handler so that it
// can be removed later.
type HandlerID uint64

// AcceptCallback runs after the accepted dependencies were replaced. It
// receives every outdated dependency of the accepting module in this cycle.
type AcceptCallback func(updated []string) error

// AcceptErrorInfo describes where an accept callback failed.
type AcceptErrorInfo struct {
	ModuleID     string
	DependencyID string
}

// AcceptErrorHandler receives the error of the matching accept callback.
// Returning a non-nil error reports both errors to the apply.
type AcceptErrorHandler func(err error, info AcceptErrorInfo) error

// SelfAcceptErrorInfo describes a failed re-execution of a self-accepted module.
type SelfAcceptErrorInfo struct {
	ModuleID string
	Module   *Module
}

// SelfAcceptErrorHandler receives the error raised while re-executing a
// self-accepted module.
type SelfAcceptErrorHandler func(err error, info SelfAcceptErrorInfo) error

// DisposeHandler is called before a module instance is discarded. Values
// stored in data are handed to the next instance through HotState.Data.
type DisposeHandler func(data map[string]any) error

type acceptRegistration struct {
	callback AcceptCallback
	onError  AcceptErrorHandler
}

type disposeEntry struct {
	id      HandlerID
	handler DisposeHandler
}

// HotState is the per-module hot-update API, available to a factory as m.Hot.
type HotState struct {
	rt     *Runtime
	module *Module

	mu                   sync.RWMutex
	acceptedDependencies map[string]*acceptRegistration
	declinedDependencies idSet
	selfAccepted         bool
	selfAcceptOnError    SelfAcceptErrorHandler
	selfDeclined         bool
	selfInvalidated      bool
	disposeHandlers      []disposeEntry
	main                 bool
	active               bool
	data                 map[string]any
}

func newHotState(rt *Runtime, m *Module, main bool, data map[string]any) *HotState {
	return &HotState{
		rt:                   rt,
		module:               m,
		acceptedDependencies: make(map[string]*acceptRegistration),
		declinedDependencies: make(idSet),
		main:                 main,
		active:               true,
		data:                 data,
	}
}

// Accept declares that this module can absorb updates of the given
// dependencies. callback runs once per cycle for all of them, and onError
// receives its failure. Both may be nil.
func (h *HotState) Accept(deps []string, callback AcceptCallback, onError AcceptErrorHandler) {
	if callback == nil {
		callback = func([]string) error { return nil }
	}
	reg := &acceptRegistration{callback: callback, onError: onError}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, dep := range deps {
		h.acceptedDependencies[dep] = reg
	}
}

// AcceptSelf declares that this module absorbs changes to itself; it is
// re-executed in place on update. onError may be nil.
func (h *HotState) AcceptSelf(onError SelfAcceptErrorHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selfAccepted = true
	h.selfAcceptOnError = onError
}

// Decline refuses updates of the given dependencies. With no arguments the
// module declines updates to itself.
func (h *HotState) Decline(deps ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(deps) == 0 {
		h.selfDeclined = true
		return
	}
	for _, dep := range deps {
		h.declinedDependencies.add(dep)
	}
}

// Dispose is an alias for AddDisposeHandler.
func (h *HotState) Dispose(handler DisposeHandler) HandlerID {
	return h.AddDisposeHandler(handler)
}

// AddDisposeHandler registers a handler called when this instance is disposed.
func (h *HotState) AddDisposeHandler(handler DisposeHandler) HandlerID {
	id := h.rt.nextHandlerID()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposeHandlers = append(h.disposeHandlers, disposeEntry{id: id, handler: handler})
	return id
}

// RemoveDisposeHandler unregisters a dispose handler.
func (h *HotState) RemoveDisposeHandler(id HandlerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, entry := range h.disposeHandlers {
		if entry.id == id {
			h.disposeHandlers = append(h.disposeHandlers[:i], h.disposeHandlers[i+1:]...)
			return
		}
	}
}

// Invalidate marks the module as outdated without a new factory. From idle
// or ready it is registered for the next apply immediately; during a check
// or apply it is queued and folded into the follow-up cycle.
func (h *HotState) Invalidate() {
	h.mu.Lock()
	h.selfInvalidated = true
	h.mu.Unlock()
	h.rt.invalidate(context.Background(), h.module.ID)
}

// Check asks the runtime for an update. See Runtime.Check.
func (h *HotState) Check(ctx context.Context, autoApply *ApplyOptions) ([]string, error) {
	return h.rt.Check(ctx, autoApply)
}

// Apply applies the prepared update. See Runtime.Apply.
func (h *HotState) Apply(ctx context.Context, opts *ApplyOptions) ([]string, error) {
	return h.rt.Apply(ctx, opts)
}

// Status returns the current runtime status.
func (h *HotState) Status() Status {
	return h.rt.Status()
}

// AddStatusHandler registers a runtime status handler.
func (h *HotState) AddStatusHandler(handler StatusHandler) HandlerID {
	return h.rt.AddStatusHandler(handler)
}

// RemoveStatusHandler unregisters a runtime status handler.
func (h *HotState) RemoveStatusHandler(id HandlerID) {
	h.rt.RemoveStatusHandler(id)
}

// Data returns the bag filled by the dispose handlers of the previous
// instance of this module, or nil on first load.
func (h *HotState) Data() map[string]any {
	return h.data
}

// Active reports whether this instance is still live. It turns false
// permanently once the instance is disposed.
func (h *HotState) Active() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// IsMain reports whether the module was loaded as a root rather than as a
// dependency of another module.
func (h *HotState) IsMain() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.main
}

func (h *HotState) deactivate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
}

func (h *HotState) isSelfAccepted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.selfAccepted
}

func (h *HotState) isSelfDeclined() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.selfDeclined
}

func (h *HotState) isSelfInvalidated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.selfInvalidated
}

func (h *HotState) selfAcceptErrorHandler() SelfAcceptErrorHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.selfAcceptOnError
}

func (h *HotState) declines(dep string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.declinedDependencies.has(dep)
}

func (h *HotState) accepts(dep string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.acceptedDependencies[dep]
	return ok
}

func (h *HotState) acceptRegistration(dep string) *acceptRegistration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.acceptedDependencies[dep]
}

func (h *HotState) disposeHandlerList() []DisposeHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DisposeHandler, 0, len(h.disposeHandlers))
	for _, entry := range h.disposeHandlers {
		out = append(out, entry.handler)
	}
	return out
}
