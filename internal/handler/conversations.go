package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/middleware"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/service"
)

// ConversationHandler handles conversation and membership endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// pathID parses a uint64 URL parameter.
func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.BadRequest("invalid %s", name)
	}
	return id, nil
}

// List handles GET /conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	resp, err := h.conversations.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateDirect handles POST /conversations/direct. Repeating the call for
// the same pair returns the existing conversation.
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.CreateDirectConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	conv, err := h.conversations.EnsureDirect(r.Context(), userID, req.OtherUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// CreateGroup handles POST /conversations.
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := middleware.ValidateGroupName(req.Name); err != nil {
		writeError(w, apperr.BadRequest("%s", err.Error()))
		return
	}
	if err := middleware.ValidateDescription(req.Description); err != nil {
		writeError(w, apperr.BadRequest("%s", err.Error()))
		return
	}

	conv, err := h.conversations.CreateGroup(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /conversations/{conversationID}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	conv, err := h.conversations.Get(r.Context(), userID, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Update handles PATCH /conversations/{conversationID}.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.UpdateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := middleware.ValidateGroupName(req.Name); err != nil {
		writeError(w, apperr.BadRequest("%s", err.Error()))
		return
	}
	if err := middleware.ValidateDescription(req.Description); err != nil {
		writeError(w, apperr.BadRequest("%s", err.Error()))
		return
	}

	conv, err := h.conversations.UpdateMetadata(r.Context(), userID, conversationID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /conversations/{conversationID}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.conversations.Delete(r.Context(), userID, conversationID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
