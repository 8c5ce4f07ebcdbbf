// Package client implements the reconciliation layer that keeps a local
// view of one open conversation consistent while history pages and pushed
// events race each other.
package client

import (
	"github.com/parley-chat/messaging-platform/internal/model"
)

// Timeline is an ordered, id-keyed set of messages for one conversation.
// It is fed by two producers: backward page fetches and pushed single
// messages. Merging is idempotent by message id.
type Timeline struct {
	messages []model.Message
	byID     map[uint64]struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{byID: make(map[uint64]struct{})}
}

// Len returns the number of messages held.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Messages returns the held messages in ascending id order. The returned
// slice is a copy.
func (t *Timeline) Messages() []model.Message {
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Contains reports whether a message id is already held.
func (t *Timeline) Contains(id uint64) bool {
	_, ok := t.byID[id]
	return ok
}

// MergePush merges a single pushed message. A message already present by
// id is discarded; merging twice leaves the timeline unchanged. Returns
// true when the message was new.
func (t *Timeline) MergePush(msg model.Message) bool {
	if t.Contains(msg.ID) {
		return false
	}
	t.byID[msg.ID] = struct{}{}

	// Pushed messages are almost always newer than everything held, so
	// append first and only walk backward when out of order.
	i := len(t.messages)
	for i > 0 && t.messages[i-1].ID > msg.ID {
		i--
	}
	t.messages = append(t.messages, model.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
	return true
}

// MergePage merges a fetched history page. Messages already present by id
// are discarded; the remainder is merged into position, preserving
// ascending order. Pages are usually older than everything held, but a
// page snapshot can carry messages newer than a pushed one whose siblings
// were lost in flight, so the merge cannot assume prepend is enough.
// Returns the count of newly added messages.
func (t *Timeline) MergePage(page []model.Message) int {
	fresh := make([]model.Message, 0, len(page))
	for _, msg := range page {
		if t.Contains(msg.ID) {
			continue
		}
		t.byID[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		return 0
	}

	merged := make([]model.Message, 0, len(t.messages)+len(fresh))
	i, j := 0, 0
	for i < len(fresh) && j < len(t.messages) {
		if fresh[i].ID < t.messages[j].ID {
			merged = append(merged, fresh[i])
			i++
		} else {
			merged = append(merged, t.messages[j])
			j++
		}
	}
	merged = append(merged, fresh[i:]...)
	merged = append(merged, t.messages[j:]...)
	t.messages = merged
	return len(fresh)
}

// Oldest returns the oldest held message, false when empty.
func (t *Timeline) Oldest() (model.Message, bool) {
	if len(t.messages) == 0 {
		return model.Message{}, false
	}
	return t.messages[0], true
}
