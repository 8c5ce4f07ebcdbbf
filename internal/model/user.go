package model

import (
	"time"
)

// User is a registered account. Usernames are immutable after registration.
type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:32;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisterRequest is the request to create a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the request to open a session.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
