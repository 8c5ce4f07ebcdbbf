package service

import (
	"context"
	"strings"
	"sync"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/bus"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/store"
	"github.com/parley-chat/messaging-platform/pkg/logger"
	"github.com/parley-chat/messaging-platform/pkg/metrics"
)

// DefaultPageSize is the backward-pagination page size.
const DefaultPageSize = 30

const appendStripes = 64

// MessageService handles the persist half of the two-step send protocol,
// soft deletion and backward page fetches. Announcing a persisted message
// is the sender's job over the realtime channel; only system messages are
// announced server-side here, because no client will do it for them.
type MessageService struct {
	store     *store.Store
	authority *Authority
	bus       bus.Publisher
	logger    *logger.Logger

	// Striped per-conversation locks serialize appends so id order and
	// timestamp order agree within a conversation.
	appendMu [appendStripes]sync.Mutex
}

// NewMessageService creates a message service.
func NewMessageService(st *store.Store, authority *Authority, b bus.Publisher, log *logger.Logger) *MessageService {
	return &MessageService{
		store:     st,
		authority: authority,
		bus:       b,
		logger:    log,
	}
}

func (s *MessageService) lockFor(conversationID uint64) *sync.Mutex {
	return &s.appendMu[conversationID%appendStripes]
}

// Send persists a user message and returns the stored row. Membership is
// re-checked here regardless of what rooms the sender's socket joined.
// On failure nothing is announced: the caller only announces after this
// returns successfully.
func (s *MessageService) Send(ctx context.Context, userID uint64, req *model.SendMessageRequest) (*model.Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.BadRequest("message content cannot be empty")
	}
	if _, err := s.store.ConversationByID(ctx, req.ConversationID); err != nil {
		return nil, err
	}
	if _, err := s.authority.Authorize(ctx, userID, req.ConversationID, ActionPost); err != nil {
		return nil, err
	}

	content := req.Content
	msg := &model.Message{
		ConversationID: req.ConversationID,
		AuthorID:       &userID,
		Kind:           model.MessageText,
		Content:        &content,
	}

	mu := s.lockFor(req.ConversationID)
	mu.Lock()
	err := s.store.AppendMessage(ctx, msg)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchConversation(ctx, req.ConversationID); err != nil {
		s.logger.Warn("failed to bump conversation after send")
	}

	metrics.MessagesTotal.WithLabelValues(string(model.MessageText)).Inc()
	return msg, nil
}

// AppendSystem persists an authorless system message and announces it to
// the room.
func (s *MessageService) AppendSystem(ctx context.Context, conversationID uint64, text string) (*model.Message, error) {
	content := text
	msg := &model.Message{
		ConversationID: conversationID,
		Kind:           model.MessageSystem,
		Content:        &content,
	}

	mu := s.lockFor(conversationID)
	mu.Lock()
	err := s.store.AppendMessage(ctx, msg)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(string(model.MessageSystem)).Inc()

	if err := s.bus.Publish(ctx, bus.Event{
		Type:           model.EventNewMessage,
		ConversationID: conversationID,
		Message:        msg,
	}); err != nil {
		// Fire-and-forget path: the message is persisted, sockets that
		// miss it backfill from pagination.
		s.logger.Warn("failed to announce system message")
	}
	return msg, nil
}

// Delete soft-deletes a message. Only the original author may delete;
// deleting twice is not an error.
func (s *MessageService) Delete(ctx context.Context, userID, messageID uint64) error {
	msg, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID == nil || *msg.AuthorID != userID {
		return apperr.Forbidden("only the author can delete a message")
	}
	return s.store.SoftDeleteMessage(ctx, messageID)
}

// Page serves one backward page of history. Only the pull path goes
// through here; live delivery rides the realtime channel.
func (s *MessageService) Page(ctx context.Context, userID, conversationID uint64, page int) (*model.MessagePage, error) {
	if _, err := s.store.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	if _, err := s.authority.Authorize(ctx, userID, conversationID, ActionRead); err != nil {
		return nil, err
	}

	result, err := s.store.PageMessages(ctx, conversationID, page, DefaultPageSize)
	if err != nil {
		return nil, err
	}
	metrics.MessagePagesTotal.Inc()
	return result, nil
}
