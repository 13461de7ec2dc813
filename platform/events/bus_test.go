package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublish_SyncHandlersCompleteBeforeReturn(t *testing.T) {
	bus := NewInMemoryBus(nil)
	seen := 0
	bus.SubscribeSync("contact.updated", HandlerFunc(func(context.Context, Event) error {
		seen++
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "contact.updated"})

	// No waiting: a sync handler must have run inline.
	if seen != 1 {
		t.Fatalf("expected sync handler to run before Publish returned, ran %d times", seen)
	}
}

func TestPublish_AsyncHandlersEventuallyRun(t *testing.T) {
	bus := NewInMemoryBus(nil)
	done := make(chan struct{})
	bus.Subscribe("contact.updated", HandlerFunc(func(context.Context, Event) error {
		close(done)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "contact.updated"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestPublishSync_ReturnsFirstHandlerError(t *testing.T) {
	bus := NewInMemoryBus(nil)
	boom := errors.New("boom")
	bus.SubscribeSync("deal.closed", HandlerFunc(func(context.Context, Event) error {
		return boom
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "deal.closed"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
}

func TestPublish_OnlyMatchingHandlersRun(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ran := false
	bus.SubscribeSync("deal.closed", HandlerFunc(func(context.Context, Event) error {
		ran = true
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "contact.updated"})

	if ran {
		t.Fatal("handler for another event name must not run")
	}
}
