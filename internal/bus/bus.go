// Package bus defines the fan-out backbone between the services and the
// room router. The production implementation rides on NATS so multiple API
// instances share rooms; the in-process implementation backs tests and
// single-node deployments.
package bus

import (
	"context"
	"sync"

	"github.com/parley-chat/messaging-platform/internal/model"
)

// Event is a room-scoped realtime event. Delivery is fire-and-forget:
// durability is the message store's responsibility, the bus only moves
// already-persisted state.
type Event struct {
	Type           model.EventType     `json:"type"`
	ConversationID uint64              `json:"conversationId"`
	Message        *model.Message      `json:"message,omitempty"`
	Conversation   *model.Conversation `json:"conversation,omitempty"`
}

// Publisher pushes events toward every room router instance.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber registers a handler for all room events. The returned stop
// function cancels the subscription.
type Subscriber interface {
	Subscribe(handler func(Event)) (stop func(), err error)
}

// Bus is both ends of the backbone.
type Bus interface {
	Publisher
	Subscriber
}

// Local is an in-process loopback bus.
type Local struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

// NewLocal creates an in-process bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[int]func(Event))}
}

// Publish delivers the event synchronously to every subscriber.
func (l *Local) Publish(ctx context.Context, ev Event) error {
	l.mu.RLock()
	handlers := make([]func(Event), 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Subscribe registers a handler.
func (l *Local) Subscribe(handler func(Event)) (func(), error) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}, nil
}
