// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user id.
	UserIDKey ContextKey = "user_id"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// Claims represents session JWT claims. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// NewSessionToken mints a session JWT for the user.
func NewSessionToken(jwtSecret string, userID uint64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// ParseSessionToken validates a session token and returns the user id.
func ParseSessionToken(jwtSecret, tokenString string) (uint64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return 0, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return strconv.ParseUint(claims.Subject, 10, 64)
}

// sessionToken extracts the token from the session cookie, falling back to
// a bearer header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// Auth creates session authentication middleware. Requests without a valid
// session never reach the handler.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := sessionToken(r)
			if tokenString == "" {
				writeAuthError(w, "missing session")
				return
			}

			userID, err := ParseSessionToken(jwtSecret, tokenString)
			if err != nil {
				writeAuthError(w, "invalid session")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"kind":"unauthorized","message":"` + message + `"}}`))
}

// GetUserID gets the authenticated user id from context, zero when absent.
func GetUserID(ctx context.Context) uint64 {
	if v := ctx.Value(UserIDKey); v != nil {
		return v.(uint64)
	}
	return 0
}
