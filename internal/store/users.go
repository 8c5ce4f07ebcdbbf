package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
)

// CreateUser inserts a new user. Duplicate usernames surface as conflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("username %q is taken", u.Username).Wrap(err)
	}
	if err != nil {
		return apperr.Internal("failed to create user").Wrap(err)
	}
	return nil
}

// UserByID looks up a user by id.
func (s *Store) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user").Wrap(err)
	}
	return &u, nil
}

// UserByUsername looks up a user by their unique handle.
func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user").Wrap(err)
	}
	return &u, nil
}

// UsersByUsernames resolves a batch of usernames. Unknown names are simply
// absent from the result; the caller decides whether that is fatal.
func (s *Store) UsersByUsernames(ctx context.Context, usernames []string) ([]model.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	var users []model.User
	err := s.db.WithContext(ctx).Where("username IN ?", usernames).Find(&users).Error
	if err != nil {
		return nil, apperr.Internal("failed to resolve usernames").Wrap(err)
	}
	return users, nil
}
