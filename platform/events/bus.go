package events

import (
	"context"
	"sync"

	"cityguide_crm_backend/platform/logger"
)

// InMemoryBus is a simple in-process event bus. Handlers registered
// for an event name receive every published event of that name. Sync
// handlers run inline on Publish; async handlers run on their own
// goroutines.
type InMemoryBus struct {
	mu           sync.RWMutex
	handlers     map[string][]Handler
	syncHandlers map[string][]Handler
	log          *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers:     make(map[string][]Handler),
		syncHandlers: make(map[string][]Handler),
		log:          log,
	}
}

// Subscribe registers a handler for the given event name. The handler
// runs asynchronously on Publish.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// SubscribeSync registers a handler that Publish runs inline, before
// returning to the publisher.
func (b *InMemoryBus) SubscribeSync(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncHandlers[eventName] = append(b.syncHandlers[eventName], handler)
}

// Publish dispatches the event: sync handlers inline, async handlers
// each on a new goroutine. Handler errors are logged, not propagated; a
// failed subscriber must not fail the mutation that emitted the event.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	syncRegistered := append([]Handler(nil), b.syncHandlers[event.EventName()]...)
	registered := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	for _, handler := range syncRegistered {
		if err := handler.Handle(ctx, event); err != nil && b.log != nil {
			b.log.Error("event handler failed",
				"event", event.EventName(),
				"error", err,
			)
		}
	}

	for _, handler := range registered {
		go func(h Handler) {
			if err := h.Handle(context.WithoutCancel(ctx), event); err != nil && b.log != nil {
				b.log.Error("event handler failed",
					"event", event.EventName(),
					"error", err,
				)
			}
		}(handler)
	}
}

// PublishSync dispatches the event and waits for all handlers, sync
// and async alike. It returns the first handler error encountered.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	registered := append([]Handler(nil), b.syncHandlers[event.EventName()]...)
	registered = append(registered, b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	for _, handler := range registered {
		if err := handler.Handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

var _ Bus = (*InMemoryBus)(nil)
