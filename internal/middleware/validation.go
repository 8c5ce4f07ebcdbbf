package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateGroupName validates a group conversation name.
func ValidateGroupName(name string) error {
	if len(name) > 100 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

// ValidateDescription validates a group description.
func ValidateDescription(description string) error {
	if len(description) > 500 {
		return errors.New("description exceeds maximum length")
	}
	if !utf8.ValidString(description) {
		return errors.New("description must be valid UTF-8")
	}
	return nil
}
