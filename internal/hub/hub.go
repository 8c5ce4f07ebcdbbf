// Package hub implements the realtime room router. It maps authenticated
// websocket connections to conversation rooms and fans room events out to
// every socket currently joined, including the sender's own sessions.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/bus"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/service"
	"github.com/parley-chat/messaging-platform/pkg/logger"
	"github.com/parley-chat/messaging-platform/pkg/metrics"
)

// Hub tracks connections and room membership. Rooms are a transport-layer
// routing concern: join performs no membership check, because every send
// path re-checks membership before persisting and announce re-checks the
// announcer here. Delivery is at-most-once and fire-and-forget.
type Hub struct {
	authority *service.Authority
	bus       bus.Bus
	logger    *logger.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[uint64]map[*Client]struct{}

	stopBus func()
}

// New creates a room router on the given fan-out backbone.
func New(authority *service.Authority, b bus.Bus, log *logger.Logger) *Hub {
	return &Hub{
		authority: authority,
		bus:       b,
		logger:    log,
		clients:   make(map[*Client]struct{}),
		rooms:     make(map[uint64]map[*Client]struct{}),
	}
}

// Start subscribes the hub to the backbone so events published by any
// instance reach this instance's sockets.
func (h *Hub) Start() error {
	stop, err := h.bus.Subscribe(h.deliver)
	if err != nil {
		return err
	}
	h.stopBus = stop
	return nil
}

// Stop cancels the backbone subscription and drops every connection.
func (h *Hub) Stop() {
	if h.stopBus != nil {
		h.stopBus()
	}
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.IncrementWSConnections()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for roomID := range c.rooms {
		h.dropFromRoom(roomID, c)
	}
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	c.close()
	metrics.DecrementWSConnections()
}

// join adds the connection to a conversation's broadcast group.
func (h *Hub) join(c *Client, conversationID uint64) {
	h.mu.Lock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	c.rooms[conversationID] = struct{}{}
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()
}

// leave removes the connection from a room.
func (h *Hub) leave(c *Client, conversationID uint64) {
	h.mu.Lock()
	delete(c.rooms, conversationID)
	h.dropFromRoom(conversationID, c)
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()
}

// dropFromRoom must be called with h.mu held.
func (h *Hub) dropFromRoom(conversationID uint64, c *Client) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// announce relays a persisted message to the room. The announcer's
// membership is re-read at call time; on failure the event is silently
// dropped — the realtime channel carries no error responses.
func (h *Hub) announce(ctx context.Context, c *Client, ev model.ClientEvent) {
	if ev.Message == nil || ev.ConversationID == 0 {
		return
	}
	_, member, err := h.authority.RoleOf(ctx, c.userID, ev.ConversationID)
	if err != nil || !member {
		h.logger.Debug("dropping announce from non-member",
			zap.Uint64("user_id", c.userID),
			zap.Uint64("conversation_id", ev.ConversationID),
		)
		return
	}

	msg := *ev.Message
	msg.ConversationID = ev.ConversationID
	msg.Sanitize()
	if err := h.bus.Publish(ctx, bus.Event{
		Type:           model.EventNewMessage,
		ConversationID: ev.ConversationID,
		Message:        &msg,
	}); err != nil {
		h.logger.Warn("failed to publish announce", zap.Uint64("conversation_id", ev.ConversationID))
	}
}

// deliver fans a backbone event out to every local socket in the room.
// Sockets that cannot keep up are evicted and must backfill through the
// pagination engine on reconnect.
func (h *Hub) deliver(ev bus.Event) {
	out := model.ServerEvent{
		Type:           ev.Type,
		ConversationID: ev.ConversationID,
		Message:        ev.Message,
		Conversation:   ev.Conversation,
	}
	if out.Message != nil {
		out.Message.Sanitize()
	}
	data, err := json.Marshal(out)
	if err != nil {
		h.logger.Error("failed to marshal server event")
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[ev.ConversationID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.DroppedClientsTotal.Inc()
		h.unregister(c)
	}
	metrics.BroadcastsTotal.WithLabelValues(string(ev.Type)).Inc()
}

// RoomSize reports how many local sockets are joined to a room.
func (h *Hub) RoomSize(conversationID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
