package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/pkg/logger"
)

// ErrRemoved is returned once the user has been removed from the open
// conversation; the reconciler is terminal after that.
var ErrRemoved = errors.New("removed from conversation")

// ErrFetchInFlight is returned when a backward fetch is already running.
var ErrFetchInFlight = errors.New("history fetch already in flight")

// Reconciler keeps the local view of one open conversation consistent.
// Pushed events and page fetches may arrive on different goroutines; all
// state is guarded by one mutex.
type Reconciler struct {
	userID         uint64
	conversationID uint64
	transport      Transport
	view           View
	logger         *logger.Logger

	mu       sync.Mutex
	timeline *Timeline
	nextPage int
	hasMore  bool
	fetching bool
	removed  bool
}

// NewReconciler creates a reconciler for one conversation and joins its
// room. The first history page must be loaded with FetchOlder.
func NewReconciler(userID, conversationID uint64, transport Transport, view View, log *logger.Logger) (*Reconciler, error) {
	if err := transport.Join(conversationID); err != nil {
		return nil, err
	}
	return &Reconciler{
		userID:         userID,
		conversationID: conversationID,
		transport:      transport,
		view:           view,
		logger:         log,
		timeline:       NewTimeline(),
		nextPage:       1,
		hasMore:        true,
	}, nil
}

// FetchOlder loads the next backward history page and merges it. While a
// fetch is outstanding no second one can start. The viewport is anchored
// on the topmost message so merged history does not shift what the user
// is looking at.
func (r *Reconciler) FetchOlder(ctx context.Context) error {
	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return ErrRemoved
	}
	if r.fetching {
		r.mu.Unlock()
		return ErrFetchInFlight
	}
	if !r.hasMore {
		r.mu.Unlock()
		return nil
	}
	r.fetching = true
	page := r.nextPage

	// Anchor on the current topmost message before the fetch.
	var anchorID uint64
	anchorOffset, anchored := 0, false
	if oldest, ok := r.timeline.Oldest(); ok {
		if off, ok := r.view.OffsetOf(oldest.ID); ok {
			anchorID, anchorOffset, anchored = oldest.ID, off, true
		}
	}
	r.mu.Unlock()

	result, err := r.transport.Page(ctx, r.conversationID, page)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetching = false
	if err != nil {
		return err
	}
	if r.removed {
		return ErrRemoved
	}

	added := r.timeline.MergePage(result.Messages)
	r.hasMore = result.HasMore
	if r.hasMore {
		r.nextPage = page + 1
	}
	if added > 0 {
		r.view.Render(r.timeline.Messages())
	}

	// Re-measure the anchor after render; an unmeasurable anchor means no
	// adjustment, not an error.
	if anchored {
		if off, ok := r.view.OffsetOf(anchorID); ok {
			r.view.ScrollBy(off - anchorOffset)
		}
	}
	return nil
}

// HandlePush reconciles a pushed message event. Duplicates by id are
// discarded, which also neutralizes the echo of the caller's own
// optimistic send.
func (r *Reconciler) HandlePush(msg *model.Message) {
	if msg == nil || msg.ConversationID != r.conversationID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return
	}
	if r.timeline.MergePush(*msg) {
		r.view.Render(r.timeline.Messages())
	}
}

// HandleMembershipChanged reconciles a membership event. When the current
// user is no longer in the member list, the room is left immediately and
// the view transitions to the terminal removed state.
func (r *Reconciler) HandleMembershipChanged(conv *model.Conversation) {
	if conv == nil || conv.ID != r.conversationID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return
	}
	for _, m := range conv.Members {
		if m.UserID == r.userID {
			return
		}
	}

	r.removed = true
	if err := r.transport.Leave(r.conversationID); err != nil {
		r.logger.Warn("failed to leave room",
			zap.Uint64("conversation_id", r.conversationID),
			zap.Error(err))
	}
	r.view.ShowRemoved()
}

// Send persists the message, appends the server's response locally without
// waiting for the broadcast echo, then announces it to the room. Persist
// failure suppresses the announce.
func (r *Reconciler) Send(ctx context.Context, content string) (*model.Message, error) {
	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return nil, ErrRemoved
	}
	r.mu.Unlock()

	msg, err := r.transport.Send(ctx, r.conversationID, content)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if !r.removed && r.timeline.MergePush(*msg) {
		r.view.Render(r.timeline.Messages())
	}
	r.mu.Unlock()

	if err := r.transport.Announce(r.conversationID, msg); err != nil {
		r.logger.Warn("failed to announce message",
			zap.Uint64("message_id", msg.ID),
			zap.Error(err))
	}
	return msg, nil
}

// Removed reports whether the reconciler has reached the terminal removed
// state.
func (r *Reconciler) Removed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed
}

// Messages returns the current reconciled view, oldest first.
func (r *Reconciler) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeline.Messages()
}
