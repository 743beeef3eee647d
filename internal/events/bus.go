package events

import (
	"github.com/kelindar/event"
)

// Bus wraps the kelindar/event dispatcher for in-process event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(SessionOpenedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on concrete type, so fan out per type
	switch e := ev.(type) {
	case SessionOpenedEvent:
		event.Publish(b.dispatcher, e)
	case SessionClosedEvent:
		event.Publish(b.dispatcher, e)
	case TranscoderSpawnFailedEvent:
		event.Publish(b.dispatcher, e)
	case TranscoderExitedEvent:
		event.Publish(b.dispatcher, e)
	case UploadStoredEvent:
		event.Publish(b.dispatcher, e)
	case UploadDeletedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e SessionClosedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionOpenedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TranscoderSpawnFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TranscoderExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UploadStoredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UploadDeletedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler type, nothing to unsubscribe
		return func() {}
	}
}
