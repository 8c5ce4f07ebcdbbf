package handler

import (
	"net/http"
	"strconv"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/middleware"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/service"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Send handles POST /messages. The message is persisted here; announcing it
// over the socket is the sender's next step.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, apperr.BadRequest("%s", err.Error()))
		return
	}

	msg, err := h.messages.Send(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Page handles GET /messages/{conversationID}?page=N. Page 1 is the newest
// slice; messages inside a page come back oldest first.
func (h *MessageHandler) Page(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeError(w, apperr.BadRequest("invalid page"))
			return
		}
	}

	result, err := h.messages.Page(r.Context(), userID, conversationID, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /messages/{messageID}. Only the author may delete,
// and deleting twice is a no-op.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := pathID(r, "messageID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.messages.Delete(r.Context(), userID, messageID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
