// Package events provides an in-process event bus for job lifecycle and
// sampler telemetry, wrapping the kelindar/event dispatcher.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for typed publish/subscribe.
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
// Usage: bus.Publish(JobFinishedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event's generic Publish needs the concrete type.
	switch e := ev.(type) {
	case JobStartedEvent:
		event.Publish(b.dispatcher, e)
	case JobFinishedEvent:
		event.Publish(b.dispatcher, e)
	case JobSkippedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceExcludedEvent:
		event.Publish(b.dispatcher, e)
	case SampleEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function; the handler's
// parameter type selects which events it receives. Returns an unsubscribe
// function.
// Usage: unsub := bus.Subscribe(func(e JobFinishedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(JobStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobSkippedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceExcludedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SampleEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
