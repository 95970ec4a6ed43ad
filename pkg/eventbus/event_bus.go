// Package eventbus publishes Dust conversation events on a watermill bus and
// dispatches the events it consumes to handlers.
package eventbus

import (
	"context"

	"github.com/dukex/operion-dust/pkg/events"
)

// Event is a notification that can travel on the bus.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events keyed by conversation.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a decoded event, e.g. *events.DustStreamEvent.
// Returning an error nacks the message.
type EventHandler func(ctx context.Context, event any) error

// EventSubscriber routes consumed events to the handler registered for their type.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}
