package model

// EventType names the events exchanged over the realtime channel.
type EventType string

const (
	// Inbound (client -> server).
	EventJoin     EventType = "join"
	EventLeave    EventType = "leave"
	EventAnnounce EventType = "announce"

	// Outbound (server -> room).
	EventNewMessage        EventType = "newMessage"
	EventMembershipChanged EventType = "membershipChanged"
)

// ClientEvent is the inbound websocket envelope.
type ClientEvent struct {
	Type           EventType `json:"type"`
	ConversationID uint64    `json:"conversationId"`
	Message        *Message  `json:"message,omitempty"`
}

// ServerEvent is the outbound websocket envelope. The realtime channel
// carries no error events: a rejected announce is simply not broadcast.
type ServerEvent struct {
	Type           EventType     `json:"type"`
	ConversationID uint64        `json:"conversationId"`
	Message        *Message      `json:"message,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
}
