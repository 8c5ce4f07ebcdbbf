package model

import (
	"time"
)

// MessageKind is the kind of a message.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageSystem MessageKind = "system"
)

// Message belongs to exactly one conversation. The id is assigned by the
// store and increases monotonically with sentDate within a conversation.
// A message is immutable except for the soft-delete flag; AuthorID is nil
// for system messages.
type Message struct {
	ID             uint64      `gorm:"primaryKey" json:"id"`
	ConversationID uint64      `gorm:"index;not null" json:"conversationId"`
	AuthorID       *uint64     `gorm:"index" json:"authorId,omitempty"`
	Author         *User       `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Kind           MessageKind `gorm:"size:16;not null;default:'text'" json:"kind"`
	Content        *string     `json:"content"`
	IsDeleted      bool        `gorm:"not null;default:false" json:"isDeleted"`
	SentAt         time.Time   `gorm:"autoCreateTime" json:"sentDate"`
}

// Sanitize nulls out the content of a soft-deleted message. Every read
// path must call this before exposing the row; id, sentDate and author
// stay visible so clients can render a placeholder in position.
func (m *Message) Sanitize() {
	if m.IsDeleted {
		m.Content = nil
	}
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	ConversationID uint64 `json:"conversationId"`
	Content        string `json:"content"`
}

// MessagePage is one backward-pagination page, ascending by id.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Total    int64     `json:"total"`
	HasMore  bool      `json:"hasMore"`
}
