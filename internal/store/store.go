// Package store owns the relational persistence for users, conversations,
// memberships and messages.
package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parley-chat/messaging-platform/internal/model"
)

// Store wraps the gorm handle. All methods take a context and read current
// state; no caching happens at this layer.
type Store struct {
	db *gorm.DB
}

// New wraps an existing gorm handle (used by tests with sqlite).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to postgres and returns a store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Membership{},
		&model.Message{},
	)
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}
