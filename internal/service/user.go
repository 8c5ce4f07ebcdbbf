package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/store"
)

// UserService handles registration and credential checks.
type UserService struct {
	store *store.Store
}

// NewUserService creates a user service.
func NewUserService(st *store.Store) *UserService {
	return &UserService{store: st}
}

// Register creates a new account. Usernames are immutable afterwards.
func (s *UserService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, apperr.BadRequest("username must be 3-32 characters")
	}
	if len(password) < 8 {
		return nil, apperr.BadRequest("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password").Wrap(err)
	}

	u := &model.User{Username: username, PasswordHash: string(hash)}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies credentials and returns the user. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.store.UserByUsername(ctx, username)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return u, nil
}
