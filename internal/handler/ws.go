package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/hub"
	"github.com/parley-chat/messaging-platform/internal/middleware"
	"github.com/parley-chat/messaging-platform/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers send cookies cross-origin on websocket upgrades; the session
	// check in middleware is the actual gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated requests onto the realtime hub.
type WSHandler struct {
	hub    *hub.Hub
	logger *logger.Logger
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(h *hub.Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{hub: h, logger: log}
}

// Serve handles GET /ws. The auth middleware runs before the upgrade, so a
// request without a valid session never reaches this point.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Uint64("user_id", userID),
			zap.Error(err))
		return
	}

	h.logger.Debug("websocket connected", zap.Uint64("user_id", userID))
	h.hub.ServeConn(conn, userID)
}
