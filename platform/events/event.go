// Package events carries domain events between modules over an
// in-process bus. Modules publish facts about what happened and
// subscribe to each other's facts without importing each other.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event that travels the bus.
type Event interface {
	// EventName identifies the event type; subscriptions key on it.
	EventName() string
	// OccurredAt reports when the event happened.
	OccurredAt() time.Time
}

// BaseEvent holds the fields every event shares. Embedding it gives an
// event its OccurredAt implementation.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt reports when the event happened.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a BaseEvent with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish hands the event to every subscriber for its name.
	// Handlers registered with SubscribeSync run before Publish
	// returns; handlers registered with Subscribe run on their own
	// goroutines.
	Publish(ctx context.Context, event Event)

	// PublishSync runs every handler inline and returns the first
	// handler error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the named event type. The
	// eventName must match Event.EventName of the published event.
	Subscribe(eventName string, handler Handler)

	// SubscribeSync registers a handler that runs inline during
	// Publish. Use it when the handler's effect must be visible to
	// the very next read after the mutation, as with cache
	// invalidation.
	SubscribeSync(eventName string, handler Handler)
}
