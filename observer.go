package hotswap

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer receives the CloudEvents emitted by a Runtime over its update
// cycles. Observers run off the update path and must not block for long.
type Observer interface {
	// OnEvent is called once per emitted event the observer subscribed to.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is implemented by event emitters that observers attach to.
type Subject interface {
	// RegisterObserver adds an observer. With no eventTypes the observer
	// receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to every interested observer without
	// waiting for them.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by a Runtime. Every event of one update cycle carries
// the same "cycleid" extension.
const (
	EventTypeStatusChanged  = "com.hotswap.status.changed"
	EventTypeUpdateChecked  = "com.hotswap.update.checked"
	EventTypeUpdateApplied  = "com.hotswap.update.applied"
	EventTypeUpdateAborted  = "com.hotswap.update.aborted"
	EventTypeUpdateFailed   = "com.hotswap.update.failed"
	EventTypeModuleDisposed = "com.hotswap.module.disposed"
	EventTypeModuleErrored  = "com.hotswap.module.errored"
)

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
