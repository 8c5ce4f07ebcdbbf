package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/parley-chat/messaging-platform/internal/bus"
)

const (
	// SubjectPrefix is the prefix for all room subjects.
	SubjectPrefix = "chat.room"
)

// RoomBus implements bus.Bus over core NATS pub/sub. Core subjects (not
// JetStream) are deliberate: the push path is fire-and-forget and a socket
// that misses a broadcast backfills from the pagination engine instead.
type RoomBus struct {
	client *Client
}

// NewRoomBus creates a room bus on an established connection.
func NewRoomBus(client *Client) *RoomBus {
	return &RoomBus{client: client}
}

// RoomSubject returns the subject for one conversation's room.
func RoomSubject(conversationID uint64) string {
	return fmt.Sprintf("%s.%d", SubjectPrefix, conversationID)
}

// Publish sends a room event to every subscribed router instance.
func (b *RoomBus) Publish(ctx context.Context, ev bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := b.client.Conn().Publish(RoomSubject(ev.ConversationID), data); err != nil {
		return fmt.Errorf("failed to publish room event: %w", err)
	}
	return nil
}

// Subscribe wires a handler for all room subjects. Undecodable payloads
// are dropped; the channel has no per-event error path.
func (b *RoomBus) Subscribe(handler func(bus.Event)) (func(), error) {
	sub, err := b.client.Conn().Subscribe(SubjectPrefix+".>", func(m *nats.Msg) {
		var ev bus.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.client.logger.Warn("dropping undecodable room event")
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room subjects: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
