package hotswap

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type.
type CloudEvent = cloudevents.Event

// cycleExtension names the CloudEvents extension carrying the update cycle id.
const cycleExtension = "cycleid"

// NewCloudEvent builds an event with a time-ordered id. Metadata entries
// become CloudEvents extensions.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range metadata {
		event.SetExtension(key, value)
	}

	return event
}

// newEventID returns a UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates event against the CloudEvents spec.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

// CycleID returns the update cycle id an event belongs to, if any.
func CycleID(event cloudevents.Event) string {
	value, ok := event.Extensions()[cycleExtension]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}
