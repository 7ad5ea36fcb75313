package hotswap

import (
	"context"
	"errors"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const eventSource = "hotswap/runtime"

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

type observerSet struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	wg        sync.WaitGroup
}

// RegisterObserver adds an observer for the runtime's update events.
func (rt *Runtime) RegisterObserver(observer Observer, eventTypes ...string) error {
	rt.observers.mu.Lock()
	defer rt.observers.mu.Unlock()

	eventTypeMap := make(map[string]bool)
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	rt.observers.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	rt.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. It is idempotent.
func (rt *Runtime) UnregisterObserver(observer Observer) error {
	rt.observers.mu.Lock()
	defer rt.observers.mu.Unlock()

	if _, exists := rt.observers.observers[observer.ObserverID()]; exists {
		delete(rt.observers.observers, observer.ObserverID())
		rt.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers delivers event to every interested observer, each on its
// own goroutine.
func (rt *Runtime) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	rt.observers.mu.RLock()
	defer rt.observers.mu.RUnlock()

	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		rt.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	for _, registration := range rt.observers.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}

		rt.observers.wg.Add(1)
		go func() {
			defer rt.observers.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					rt.logger.Error("Observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()

			if err := registration.observer.OnEvent(ctx, event); err != nil {
				rt.logger.Error("Observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// GetObservers lists the registered observers.
func (rt *Runtime) GetObservers() []ObserverInfo {
	rt.observers.mu.RLock()
	defer rt.observers.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(rt.observers.observers))
	for _, registration := range rt.observers.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// WaitObservers blocks until every observer call started so far returned.
func (rt *Runtime) WaitObservers() {
	rt.observers.wg.Wait()
}

func (rt *Runtime) emit(ctx context.Context, cycle, eventType string, data map[string]any) {
	var metadata map[string]any
	if cycle != "" {
		metadata = map[string]any{cycleExtension: cycle}
	}
	event := NewCloudEvent(eventType, eventSource, data, metadata)
	if err := rt.NotifyObservers(context.WithoutCancel(ctx), event); err != nil {
		rt.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

func (rt *Runtime) emitStatusChanged(ctx context.Context, cycle string, from, to Status) {
	rt.emit(ctx, cycle, EventTypeStatusChanged, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

func (rt *Runtime) emitUpdateChecked(ctx context.Context, cycle, hash string, updated []string) {
	rt.emit(ctx, cycle, EventTypeUpdateChecked, map[string]any{
		"hash":    hash,
		"updated": updated,
	})
}

func (rt *Runtime) emitUpdateApplied(ctx context.Context, cycle string, outdated []string) {
	rt.emit(ctx, cycle, EventTypeUpdateApplied, map[string]any{
		"outdated": outdated,
		"hash":     rt.Hash(),
	})
}

func (rt *Runtime) emitUpdateAborted(ctx context.Context, cycle string, err error) {
	data := map[string]any{"error": err.Error()}
	var abort *AbortError
	if errors.As(err, &abort) {
		data["module"] = abort.Outcome.ModuleID()
		data["chain"] = abort.Chain()
	}
	rt.emit(ctx, cycle, EventTypeUpdateAborted, data)
}

func (rt *Runtime) emitUpdateFailed(ctx context.Context, cycle string, err error) {
	rt.emit(ctx, cycle, EventTypeUpdateFailed, map[string]any{"error": err.Error()})
}

func (rt *Runtime) emitModuleDisposed(ctx context.Context, cycle, id string) {
	rt.emit(ctx, cycle, EventTypeModuleDisposed, map[string]any{"module": id})
}

func (rt *Runtime) emitModuleErrored(ctx context.Context, cycle string, event ErrorEvent) {
	data := map[string]any{
		"kind":   string(event.Kind),
		"module": event.ModuleID,
		"error":  event.Err.Error(),
	}
	if event.DependencyID != "" {
		data["dependency"] = event.DependencyID
	}
	rt.emit(ctx, cycle, EventTypeModuleErrored, data)
}
