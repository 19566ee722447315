package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventTaskCompleted           EventType = "task_completed"
	EventTaskCancelled           EventType = "task_cancelled"
	EventDownloadCompleted       EventType = "download_completed"
	EventSubscriptionRefreshed   EventType = "subscription_refreshed"
	EventSubscriptionFailed      EventType = "subscription_failed"
	EventSubscriptionDeactivated EventType = "subscription_deactivated"
	EventTrackRefreshed          EventType = "track_refreshed"
)

// AllEventTypes lists every event type the services publish
var AllEventTypes = []EventType{
	EventTaskCompleted,
	EventTaskCancelled,
	EventDownloadCompleted,
	EventSubscriptionRefreshed,
	EventSubscriptionFailed,
	EventSubscriptionDeactivated,
	EventTrackRefreshed,
}

// Identified is implemented by event payloads that carry an entity id
type Identified interface {
	GetID() string
}

// Event represents a system event. Payload is usually a snapshot of the entity.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID identifies one Subscribe call. Unsubscribe takes it back.
type SubscriptionID uint64

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) (SubscriptionID, error)

	// Unsubscribe removes the registration returned by Subscribe
	Unsubscribe(eventType EventType, id SubscriptionID) error

	// Publish an event to all subscribers without waiting
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
