package client

import (
	"context"

	"github.com/parley-chat/messaging-platform/internal/model"
)

// Transport is what the reconciler needs from the wire: the synchronous
// request/response surface plus the realtime channel verbs.
type Transport interface {
	// Page fetches one backward history page (page 1 = newest).
	Page(ctx context.Context, conversationID uint64, page int) (*model.MessagePage, error)
	// Send persists a message synchronously. It does not announce.
	Send(ctx context.Context, conversationID uint64, content string) (*model.Message, error)
	// Announce asks the room to broadcast an already-persisted message.
	Announce(conversationID uint64, msg *model.Message) error
	// Join subscribes the connection to a room.
	Join(conversationID uint64) error
	// Leave unsubscribes the connection from a room.
	Leave(conversationID uint64) error
}

// View is the rendering surface the reconciler drives. Offsets are in
// whatever unit the view scrolls by (pixels, rows).
type View interface {
	// Render replaces the rendered message list.
	Render(messages []model.Message)
	// OffsetOf reports the current screen offset of a message, false when
	// the message is not measurable.
	OffsetOf(messageID uint64) (int, bool)
	// ScrollBy adjusts the scroll position by a delta.
	ScrollBy(delta int)
	// ShowRemoved transitions to the terminal removed state.
	ShowRemoved()
}
