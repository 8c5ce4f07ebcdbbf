// Package service provides business logic for the messaging platform.
package service

import (
	"context"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/store"
)

// Action is something a user may attempt within a conversation.
type Action int

const (
	ActionRead Action = iota
	ActionPost
	ActionEditMetadata
	ActionAddMembers
	ActionRemoveOther
	ActionChangeRole
)

// minRank is the minimum role rank required for the action.
func (a Action) minRank() int {
	switch a {
	case ActionRead, ActionPost:
		return model.RoleMember.Rank()
	default:
		return model.RoleAdmin.Rank()
	}
}

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionPost:
		return "post"
	case ActionEditMetadata:
		return "edit metadata"
	case ActionAddMembers:
		return "add members"
	case ActionRemoveOther:
		return "remove members"
	case ActionChangeRole:
		return "change roles"
	default:
		return "unknown"
	}
}

// Authority resolves (user, conversation) pairs to roles and gates
// actions. It is a pure decision function over current membership state:
// every call re-reads the store, because roles can change between
// requests.
type Authority struct {
	store *store.Store
}

// NewAuthority creates a membership authority.
func NewAuthority(st *store.Store) *Authority {
	return &Authority{store: st}
}

// RoleOf returns the user's role in the conversation, or ok=false when the
// user is not a member.
func (a *Authority) RoleOf(ctx context.Context, userID, conversationID uint64) (model.Role, bool, error) {
	m, err := a.store.MembershipOf(ctx, conversationID, userID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.Role, true, nil
}

// Authorize allows or denies an action, returning the caller's role on
// success so callers can apply finer target-specific rules.
func (a *Authority) Authorize(ctx context.Context, userID, conversationID uint64, action Action) (model.Role, error) {
	role, ok, err := a.RoleOf(ctx, userID, conversationID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Forbidden("not a member of this conversation")
	}
	if role.Rank() < action.minRank() {
		return "", apperr.Forbidden("insufficient role to %s", action)
	}
	return role, nil
}
