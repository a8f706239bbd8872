package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// AllEventTypes lists every ticket event, in lifecycle order.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketReplied,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
}

// HandlerError records which event a failing handler was given.
type HandlerError struct {
	Type EventType
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Bus runs handlers inline on the publishing goroutine, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates an empty Bus.
func NewInMemoryDispatcher() *Bus {
	return &Bus{handlers: make(map[EventType][]EventHandler)}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers handler for each of types, or for every ticket event
// when none are given.
func (b *Bus) SubscribeAll(handler EventHandler, types ...EventType) {
	if len(types) == 0 {
		types = AllEventTypes
	}
	for _, t := range types {
		b.Subscribe(t, handler)
	}
}

// HandlerCount reports how many handlers listen for eventType.
func (b *Bus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Publish invokes every handler for the event. A failing or panicking handler
// does not stop the rest; failures come back joined, each as a *HandlerError.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := invoke(ctx, handler, event); err != nil {
			errs = append(errs, &HandlerError{Type: event.Type, Err: err})
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
