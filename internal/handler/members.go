package handler

import (
	"net/http"

	"github.com/parley-chat/messaging-platform/internal/middleware"
	"github.com/parley-chat/messaging-platform/internal/model"
)

// AddMembers handles POST /conversations/{conversationID}/members.
func (h *ConversationHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.AddMembersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.conversations.AddMembers(r.Context(), userID, conversationID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveMember handles DELETE /conversations/{conversationID}/members.
// A caller targeting themselves leaves the conversation.
func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.RemoveMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TargetUserID == 0 {
		req.TargetUserID = userID
	}

	conv, err := h.conversations.RemoveMember(r.Context(), userID, conversationID, req.TargetUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ChangeRole handles PATCH /conversations/{conversationID}/members/role.
func (h *ConversationHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.ChangeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	conv, err := h.conversations.ChangeRole(r.Context(), userID, conversationID, req.TargetUserID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
