package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
)

// AppendMessage persists a new message. The primary key sequence is
// storage-wide; per-conversation monotonicity of id vs. timestamp holds
// because the message service serializes appends per conversation.
func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperr.Internal("failed to append message").Wrap(err)
	}
	if msg.AuthorID != nil {
		var author model.User
		if err := s.db.WithContext(ctx).First(&author, *msg.AuthorID).Error; err == nil {
			msg.Author = &author
		}
	}
	return nil
}

// MessageByID loads a single message with its author, sanitized.
func (s *Store) MessageByID(ctx context.Context, id uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Preload("Author").First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load message").Wrap(err)
	}
	msg.Sanitize()
	return &msg, nil
}

// SoftDeleteMessage flips the soft-delete flag. Idempotent: deleting an
// already-deleted message is not an error. The row itself is never
// physically removed while its conversation exists.
func (s *Store) SoftDeleteMessage(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Update("is_deleted", true)
	if res.Error != nil {
		return apperr.Internal("failed to delete message").Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		s.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Count(&n)
		if n == 0 {
			return apperr.NotFound("message not found")
		}
	}
	return nil
}

// PageMessages serves backward pagination: page 1 is the newest pageSize
// messages; higher pages walk toward the oldest. Rows come back ascending
// by id. A page number past the true end clamps to the last page, and
// hasMore is true exactly when older rows remain beyond the returned page.
func (s *Store) PageMessages(ctx context.Context, conversationID uint64, page, pageSize int) (*model.MessagePage, error) {
	if page < 1 {
		page = 1
	}

	var total int64
	err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	if err != nil {
		return nil, apperr.Internal("failed to count messages").Wrap(err)
	}
	if total == 0 {
		return &model.MessagePage{Messages: []model.Message{}, Total: 0, HasMore: false}, nil
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if page > totalPages {
		page = totalPages
	}

	var rows []model.Message
	err = s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Preload("Author").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal("failed to page messages").Wrap(err)
	}

	// Reverse into ascending id order and hide deleted content.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	for i := range rows {
		rows[i].Sanitize()
	}

	return &model.MessagePage{
		Messages: rows,
		Total:    total,
		HasMore:  int64(page)*int64(pageSize) < total,
	}, nil
}
