package handler

import (
	"net/http"
	"time"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/middleware"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/service"
)

// AuthHandler handles registration and session lifecycle.
type AuthHandler struct {
	users         *service.UserService
	jwtSecret     string
	sessionTTL    time.Duration
	secureCookies bool
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(users *service.UserService, jwtSecret string, sessionTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		users:         users,
		jwtSecret:     jwtSecret,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.setSession(w, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.setSession(w, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /auth/logout. It clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, userID uint64) error {
	token, err := middleware.NewSessionToken(h.jwtSecret, userID, h.sessionTTL)
	if err != nil {
		return apperr.Internal("failed to mint session: %v", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
