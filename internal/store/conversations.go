package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
)

// CreateConversation creates a conversation with zero members. Attaching
// members is a separate step; a crash in between leaves an unreachable
// orphan, which is accepted.
func (s *Store) CreateConversation(ctx context.Context, kind model.ConversationKind, name, description *string) (*model.Conversation, error) {
	conv := &model.Conversation{
		Kind:        kind,
		Name:        name,
		Description: description,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, apperr.Internal("failed to create conversation").Wrap(err)
	}
	return conv, nil
}

// DirectPairKey returns the normalized pair key for a direct conversation
// between two users. Order of the arguments does not matter.
func DirectPairKey(userA, userB uint64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

// CreateDirectConversation creates the shell of a direct conversation for
// a user pair. The unique pair key means that of two concurrent creators
// only one wins; the loser gets a conflict.
func (s *Store) CreateDirectConversation(ctx context.Context, userA, userB uint64) (*model.Conversation, error) {
	key := DirectPairKey(userA, userB)
	conv := &model.Conversation{
		Kind:      model.KindDirect,
		DirectKey: &key,
	}
	err := s.db.WithContext(ctx).Create(conv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.Conflict("direct conversation already exists").Wrap(err)
	}
	if err != nil {
		return nil, apperr.Internal("failed to create conversation").Wrap(err)
	}
	return conv, nil
}

// ConversationByID loads a conversation with its members.
func (s *Store) ConversationByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Preload("Members.User").First(&conv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load conversation").Wrap(err)
	}
	return &conv, nil
}

// FindDirectConversation returns the direct conversation whose membership
// set is exactly {userA, userB}, or nil when none exists. Requiring both a
// distinct-member count of two and a total membership count of two rules
// out groups that happen to contain both users as well as half-attached
// conversations.
func (s *Store) FindDirectConversation(ctx context.Context, userA, userB uint64) (*model.Conversation, error) {
	sub := s.db.WithContext(ctx).Model(&model.Membership{}).
		Select("conversation_id").
		Where("user_id IN ?", []uint64{userA, userB}).
		Group("conversation_id").
		Having("COUNT(DISTINCT user_id) = 2")

	var conv model.Conversation
	err := s.db.WithContext(ctx).
		Where("kind = ?", model.KindDirect).
		Where("id IN (?)", sub).
		Where("(SELECT COUNT(*) FROM memberships m2 WHERE m2.conversation_id = conversations.id) = 2").
		Preload("Members.User").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to find direct conversation").Wrap(err)
	}
	return &conv, nil
}

// ListConversationsForUser returns every conversation the user belongs to,
// most recently updated first.
func (s *Store) ListConversationsForUser(ctx context.Context, userID uint64) ([]model.Conversation, error) {
	sub := s.db.WithContext(ctx).Model(&model.Membership{}).
		Select("conversation_id").
		Where("user_id = ?", userID)

	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Where("id IN (?)", sub).
		Order("updated_at DESC").
		Preload("Members.User").
		Find(&convs).Error
	if err != nil {
		return nil, apperr.Internal("failed to list conversations").Wrap(err)
	}
	return convs, nil
}

// SaveConversation persists metadata changes and bumps the update stamp.
func (s *Store) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	conv.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]any{
			"name":        conv.Name,
			"description": conv.Description,
			"updated_at":  conv.UpdatedAt,
		}).Error
	if err != nil {
		return apperr.Internal("failed to update conversation").Wrap(err)
	}
	return nil
}

// TouchConversation bumps the last-update timestamp. Any mutation visible
// to members goes through this.
func (s *Store) TouchConversation(ctx context.Context, id uint64) error {
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return apperr.Internal("failed to touch conversation").Wrap(err)
	}
	return nil
}

// DeleteConversation removes a conversation and cascades to its
// memberships and messages in one transaction.
func (s *Store) DeleteConversation(ctx context.Context, id uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Membership{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Conversation{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("conversation not found")
	}
	if err != nil {
		return apperr.Internal("failed to delete conversation").Wrap(err)
	}
	return nil
}

// AddMembership attaches a user to a conversation. The unique
// (conversation, user) constraint makes double-joins a conflict.
func (s *Store) AddMembership(ctx context.Context, m *model.Membership) error {
	err := s.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("user is already a member").Wrap(err)
	}
	if err != nil {
		return apperr.Internal("failed to add member").Wrap(err)
	}
	return s.db.WithContext(ctx).Preload("User").First(m, m.ID).Error
}

// MembershipOf resolves the membership of a user in a conversation.
func (s *Store) MembershipOf(ctx context.Context, conversationID, userID uint64) (*model.Membership, error) {
	var m model.Membership
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("not a member of this conversation")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load membership").Wrap(err)
	}
	return &m, nil
}

// Memberships lists a conversation's members with their users.
func (s *Store) Memberships(ctx context.Context, conversationID uint64) ([]model.Membership, error) {
	var members []model.Membership
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Preload("User").
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, apperr.Internal("failed to list members").Wrap(err)
	}
	return members, nil
}

// RemoveMembership detaches a user from a conversation.
func (s *Store) RemoveMembership(ctx context.Context, conversationID, userID uint64) error {
	res := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&model.Membership{})
	if res.Error != nil {
		return apperr.Internal("failed to remove member").Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("not a member of this conversation")
	}
	return nil
}

// UpdateMembershipRole sets a member's role.
func (s *Store) UpdateMembershipRole(ctx context.Context, conversationID, userID uint64, role model.Role) error {
	res := s.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("role", role)
	if res.Error != nil {
		return apperr.Internal("failed to update role").Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("not a member of this conversation")
	}
	return nil
}

// CountOwners counts a conversation's owners.
func (s *Store) CountOwners(ctx context.Context, conversationID uint64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("conversation_id = ? AND role = ?", conversationID, model.RoleOwner).
		Count(&n).Error
	if err != nil {
		return 0, apperr.Internal("failed to count owners").Wrap(err)
	}
	return n, nil
}
