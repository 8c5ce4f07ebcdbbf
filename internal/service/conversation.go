package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/bus"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/store"
	"github.com/parley-chat/messaging-platform/pkg/logger"
	"github.com/parley-chat/messaging-platform/pkg/metrics"
)

// ConversationService handles conversation lifecycle and membership
// changes. Every mutation that alters the member list or metadata emits a
// membershipChanged event with the full updated member list, so connected
// clients can detect their own removal without polling.
type ConversationService struct {
	store     *store.Store
	authority *Authority
	messages  *MessageService
	bus       bus.Publisher
	logger    *logger.Logger
}

// NewConversationService creates a conversation service.
func NewConversationService(st *store.Store, authority *Authority, messages *MessageService, b bus.Publisher, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:     st,
		authority: authority,
		messages:  messages,
		bus:       b,
		logger:    log,
	}
}

// EnsureDirect returns the direct conversation between the caller and the
// other user, creating it when absent. Idempotent: two sequential calls
// return the same conversation. Creation and member attachment are not
// transactionally fused; the unique pair key turns the concurrent-create
// race into a conflict for the loser, who then falls back to the winner's
// conversation when it is already reachable.
func (s *ConversationService) EnsureDirect(ctx context.Context, userID, otherUserID uint64) (*model.Conversation, error) {
	if userID == otherUserID {
		return nil, apperr.BadRequest("cannot start a conversation with yourself")
	}
	if _, err := s.store.UserByID(ctx, otherUserID); err != nil {
		return nil, err
	}

	if existing, err := s.store.FindDirectConversation(ctx, userID, otherUserID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	conv, err := s.store.CreateDirectConversation(ctx, userID, otherUserID)
	if apperr.IsKind(err, apperr.KindConflict) {
		// Lost the create race. The winner's conversation is only
		// reachable once both members are attached; until then the
		// conflict stands.
		if existing, ferr := s.store.FindDirectConversation(ctx, userID, otherUserID); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	for _, uid := range []uint64{userID, otherUserID} {
		m := &model.Membership{ConversationID: conv.ID, UserID: uid, Role: model.RoleMember}
		if err := s.store.AddMembership(ctx, m); err != nil {
			return nil, err
		}
	}

	metrics.ConversationsTotal.WithLabelValues(string(model.KindDirect)).Inc()
	s.logger.Info("direct conversation created",
		zap.Uint64("conversation_id", conv.ID),
		zap.Uint64("user_id", userID),
		zap.Uint64("other_user_id", otherUserID),
	)
	return s.store.ConversationByID(ctx, conv.ID)
}

// CreateGroup creates a group conversation with the caller as owner and
// attaches the listed usernames as members. Unknown usernames are skipped.
func (s *ConversationService) CreateGroup(ctx context.Context, userID uint64, req *model.CreateGroupRequest) (*model.Conversation, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("group name is required")
	}

	var description *string
	if req.Description != "" {
		description = &req.Description
	}
	conv, err := s.store.CreateConversation(ctx, model.KindGroup, &name, description)
	if err != nil {
		return nil, err
	}

	owner := &model.Membership{ConversationID: conv.ID, UserID: userID, Role: model.RoleOwner}
	if err := s.store.AddMembership(ctx, owner); err != nil {
		return nil, err
	}

	users, err := s.store.UsersByUsernames(ctx, req.Usernames)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			continue
		}
		m := &model.Membership{ConversationID: conv.ID, UserID: u.ID, Role: model.RoleMember}
		if err := s.store.AddMembership(ctx, m); err != nil {
			if apperr.IsKind(err, apperr.KindConflict) {
				continue
			}
			return nil, err
		}
	}

	metrics.ConversationsTotal.WithLabelValues(string(model.KindGroup)).Inc()
	s.logger.Info("group created", zap.Uint64("conversation_id", conv.ID), zap.Uint64("owner_id", userID))
	return s.store.ConversationByID(ctx, conv.ID)
}

// Get loads a conversation with its members. 404 when absent; membership
// is required to read.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID uint64) (*model.Conversation, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authority.Authorize(ctx, userID, conversationID, ActionRead); err != nil {
		return nil, err
	}
	return conv, nil
}

// List returns every conversation the caller belongs to.
func (s *ConversationService) List(ctx context.Context, userID uint64) (*model.ListConversationsResponse, error) {
	convs, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.ListConversationsResponse{Conversations: convs, Total: len(convs)}, nil
}

// UpdateMetadata patches name/description. Non-empty fields apply;
// clearDescription removes the description. Requires admin, which only
// group members can hold.
func (s *ConversationService) UpdateMetadata(ctx context.Context, userID, conversationID uint64, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authority.Authorize(ctx, userID, conversationID, ActionEditMetadata); err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		conv.Name = &name
	}
	if req.ClearDescription {
		conv.Description = nil
	} else if req.Description != "" {
		conv.Description = &req.Description
	}

	if err := s.store.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}
	updated, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.publishMembershipChanged(ctx, updated)
	return updated, nil
}

// AddMembers attaches users by username. Unknown usernames and users who
// are already members are skipped, not fatal to the batch. Each addition
// appends a system message.
func (s *ConversationService) AddMembers(ctx context.Context, userID, conversationID uint64, req *model.AddMembersRequest) (*model.AddMembersResponse, error) {
	if _, err := s.store.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	if _, err := s.authority.Authorize(ctx, userID, conversationID, ActionAddMembers); err != nil {
		return nil, err
	}

	users, err := s.store.UsersByUsernames(ctx, req.Usernames)
	if err != nil {
		return nil, err
	}

	var added []model.Membership
	for _, u := range users {
		m := &model.Membership{ConversationID: conversationID, UserID: u.ID, Role: model.RoleMember}
		if err := s.store.AddMembership(ctx, m); err != nil {
			if apperr.IsKind(err, apperr.KindConflict) {
				continue
			}
			return nil, err
		}
		added = append(added, *m)
		if _, err := s.messages.AppendSystem(ctx, conversationID, fmt.Sprintf("%s joined the conversation", u.Username)); err != nil {
			s.logger.Warn("failed to append join notice")
		}
	}

	if err := s.store.TouchConversation(ctx, conversationID); err != nil {
		s.logger.Warn("failed to bump conversation after member add")
	}
	updated, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.publishMembershipChanged(ctx, updated)

	return &model.AddMembersResponse{Added: added, Conversation: *updated}, nil
}

// RemoveMember removes a member. Self-removal is always allowed except for
// the sole remaining owner of a group, which is denied with the distinct
// sole_owner code so callers can offer ownership transfer. Removing anyone
// else requires admin, and an admin can never remove an owner.
func (s *ConversationService) RemoveMember(ctx context.Context, callerID, conversationID, targetUserID uint64) (*model.Conversation, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	target, err := s.store.MembershipOf(ctx, conversationID, targetUserID)
	if err != nil {
		return nil, err
	}

	leaving := callerID == targetUserID
	if leaving {
		if conv.Kind == model.KindGroup && target.Role == model.RoleOwner {
			owners, err := s.store.CountOwners(ctx, conversationID)
			if err != nil {
				return nil, err
			}
			if owners <= 1 {
				return nil, apperr.Forbidden("the sole owner cannot leave the group").WithCode(apperr.CodeSoleOwner)
			}
		}
	} else {
		callerRole, err := s.authority.Authorize(ctx, callerID, conversationID, ActionRemoveOther)
		if err != nil {
			return nil, err
		}
		if target.Role == model.RoleOwner && callerRole != model.RoleOwner {
			return nil, apperr.Forbidden("cannot remove an owner")
		}
	}

	targetUser, err := s.store.UserByID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if err := s.store.RemoveMembership(ctx, conversationID, targetUserID); err != nil {
		return nil, err
	}

	notice := fmt.Sprintf("%s was removed from the conversation", targetUser.Username)
	if leaving {
		notice = fmt.Sprintf("%s left the conversation", targetUser.Username)
	}
	if _, err := s.messages.AppendSystem(ctx, conversationID, notice); err != nil {
		s.logger.Warn("failed to append removal notice")
	}

	if err := s.store.TouchConversation(ctx, conversationID); err != nil {
		s.logger.Warn("failed to bump conversation after member removal")
	}
	updated, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.publishMembershipChanged(ctx, updated)
	return updated, nil
}

// ChangeRole changes another member's role. Requires admin; an admin may
// not promote or demote an owner, and only an owner can grant the owner
// role. Demoting the sole owner is denied like a sole-owner leave.
func (s *ConversationService) ChangeRole(ctx context.Context, callerID, conversationID, targetUserID uint64, role model.Role) (*model.Conversation, error) {
	if !role.Valid() {
		return nil, apperr.BadRequest("unknown role %q", role)
	}
	if _, err := s.store.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	callerRole, err := s.authority.Authorize(ctx, callerID, conversationID, ActionChangeRole)
	if err != nil {
		return nil, err
	}
	target, err := s.store.MembershipOf(ctx, conversationID, targetUserID)
	if err != nil {
		return nil, err
	}

	if target.Role == model.RoleOwner && callerRole != model.RoleOwner {
		return nil, apperr.Forbidden("cannot change the role of an owner")
	}
	if role == model.RoleOwner && callerRole != model.RoleOwner {
		return nil, apperr.Forbidden("only an owner can grant the owner role")
	}
	if target.Role == model.RoleOwner && role != model.RoleOwner {
		owners, err := s.store.CountOwners(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, apperr.Forbidden("cannot demote the sole owner").WithCode(apperr.CodeSoleOwner)
		}
	}

	if err := s.store.UpdateMembershipRole(ctx, conversationID, targetUserID, role); err != nil {
		return nil, err
	}
	if err := s.store.TouchConversation(ctx, conversationID); err != nil {
		s.logger.Warn("failed to bump conversation after role change")
	}
	updated, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.publishMembershipChanged(ctx, updated)
	return updated, nil
}

// Delete removes a conversation entirely, cascading to memberships and
// messages. Owners only.
func (s *ConversationService) Delete(ctx context.Context, callerID, conversationID uint64) error {
	if _, err := s.store.ConversationByID(ctx, conversationID); err != nil {
		return err
	}
	role, ok, err := s.authority.RoleOf(ctx, callerID, conversationID)
	if err != nil {
		return err
	}
	if !ok || role != model.RoleOwner {
		return apperr.Forbidden("only an owner can delete a conversation")
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

func (s *ConversationService) publishMembershipChanged(ctx context.Context, conv *model.Conversation) {
	if err := s.bus.Publish(ctx, bus.Event{
		Type:           model.EventMembershipChanged,
		ConversationID: conv.ID,
		Conversation:   conv,
	}); err != nil {
		s.logger.Warn("failed to publish membership change", zap.Uint64("conversation_id", conv.ID))
	}
}
