// Package model defines data structures for the messaging platform.
package model

import (
	"time"
)

// ConversationKind distinguishes 1:1 chats from groups.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Role is a member's role within a conversation.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Rank maps roles to an ordered numeric rank so authorization checks are
// plain comparisons. Unknown roles rank below member.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 2
	case RoleAdmin:
		return 1
	case RoleMember:
		return 0
	default:
		return -1
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// Conversation is a direct (exactly two members) or group (N members)
// messaging context. Memberships and messages cascade-delete with it.
type Conversation struct {
	ID   uint64           `gorm:"primaryKey" json:"id"`
	Kind ConversationKind `gorm:"size:16;not null;index" json:"kind"`
	// DirectKey is the normalized "<minUserID>:<maxUserID>" pair for a
	// direct conversation and null for groups. Its uniqueness turns the
	// concurrent create-direct race into a duplicate-key conflict for
	// the loser.
	DirectKey   *string   `gorm:"size:64;uniqueIndex" json:"-"`
	Name        *string   `gorm:"size:100" json:"name,omitempty"`
	Description *string   `gorm:"size:500" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Members []Membership `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// Membership binds one user to one conversation with a role.
// A (conversation, user) pair is unique: joining twice is impossible.
type Membership struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	ConversationID uint64    `gorm:"uniqueIndex:idx_membership_conv_user;not null" json:"conversationId"`
	UserID         uint64    `gorm:"uniqueIndex:idx_membership_conv_user;not null" json:"userId"`
	User           User      `gorm:"foreignKey:UserID" json:"user"`
	Role           Role      `gorm:"size:16;not null;default:'member'" json:"role"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

// CreateDirectConversationRequest asks for the 1:1 conversation with
// another user, creating it if it does not exist yet.
type CreateDirectConversationRequest struct {
	OtherUserID uint64 `json:"otherUserId"`
}

// CreateGroupRequest creates a group conversation. The caller becomes its
// owner; the listed usernames are attached as members.
type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Usernames   []string `json:"usernames,omitempty"`
}

// UpdateConversationRequest patches group metadata. Only non-empty fields
// apply; ClearDescription removes the description explicitly.
type UpdateConversationRequest struct {
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	ClearDescription bool   `json:"clearDescription,omitempty"`
}

// AddMembersRequest attaches users by username. Unknown usernames are
// skipped, not fatal to the batch.
type AddMembersRequest struct {
	Usernames []string `json:"usernames"`
}

// AddMembersResponse reports which memberships were actually created.
type AddMembersResponse struct {
	Added        []Membership `json:"added"`
	Conversation Conversation `json:"conversation"`
}

// RemoveMemberRequest removes a member (or the caller themselves).
type RemoveMemberRequest struct {
	TargetUserID uint64 `json:"targetUserId"`
}

// ChangeRoleRequest changes another member's role.
type ChangeRoleRequest struct {
	TargetUserID uint64 `json:"targetUserId"`
	Role         Role   `json:"role"`
}

// ListConversationsResponse lists the caller's conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
