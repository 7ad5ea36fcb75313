package hotswap

import (
	"context"
	"fmt"
	"sync"
)

// Status is the process-wide hot-update status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusCheck   Status = "check"
	StatusPrepare Status = "prepare"
	StatusReady   Status = "ready"
	StatusDispose Status = "dispose"
	StatusApply   Status = "apply"
	StatusAbort   Status = "abort"
	StatusFail    Status = "fail"
)

// transitions lists the legal edges of the status machine. idle -> ready is
// taken when a module invalidates itself while nothing is in flight; abort
// and fail always return to idle once the failure has been surfaced.
var transitions = map[Status][]Status{
	StatusIdle:    {StatusCheck, StatusReady},
	StatusCheck:   {StatusPrepare, StatusIdle, StatusAbort},
	StatusPrepare: {StatusReady, StatusAbort},
	StatusReady:   {StatusPrepare, StatusDispose, StatusAbort},
	StatusDispose: {StatusApply},
	StatusApply:   {StatusFail, StatusIdle, StatusApply},
	StatusAbort:   {StatusIdle},
	StatusFail:    {StatusIdle},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// StatusHandler observes status transitions. Handlers run in registration
// order and all of them complete before the transition does.
type StatusHandler func(ctx context.Context, status Status) error

type statusEntry struct {
	id      HandlerID
	handler StatusHandler
}

type statusMachine struct {
	mu       sync.Mutex
	current  Status
	handlers []statusEntry

	// onChange runs after the handlers for every successful transition.
	onChange func(ctx context.Context, from, to Status)
	// onHandlerError receives errors returned or panics raised by handlers.
	onHandlerError func(err error, status Status)
}

func newStatusMachine() *statusMachine {
	return &statusMachine{current: StatusIdle}
}

func (m *statusMachine) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *statusMachine) add(id HandlerID, h StatusHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, statusEntry{id: id, handler: h})
}

func (m *statusMachine) remove(id HandlerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, entry := range m.handlers {
		if entry.id == id {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			return
		}
	}
}

// set moves the machine to next and joins all handlers.
func (m *statusMachine) set(ctx context.Context, next Status) error {
	m.mu.Lock()
	from := m.current
	if !from.CanTransitionTo(next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	m.current = next
	m.mu.Unlock()

	m.notify(ctx, from, next)
	return nil
}

// setFrom moves the machine to next only when it is currently in expected.
// It reports false without side effects otherwise.
func (m *statusMachine) setFrom(ctx context.Context, expected, next Status) bool {
	m.mu.Lock()
	if m.current != expected {
		m.mu.Unlock()
		return false
	}
	m.current = next
	m.mu.Unlock()

	m.notify(ctx, expected, next)
	return true
}

func (m *statusMachine) notify(ctx context.Context, from, to Status) {
	m.mu.Lock()
	handlers := make([]statusEntry, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, entry := range handlers {
		handler := entry.handler
		if err := safeCall(func() error { return handler(ctx, to) }); err != nil && m.onHandlerError != nil {
			m.onHandlerError(err, to)
		}
	}
	if m.onChange != nil {
		m.onChange(ctx, from, to)
	}
}
