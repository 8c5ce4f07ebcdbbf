package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := NewSessionToken("secret", 42, time.Hour)
	require.NoError(t, err)

	userID, err := ParseSessionToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), userID)
}

func TestParseSessionTokenWrongSecret(t *testing.T) {
	token, err := NewSessionToken("secret", 42, time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken("other", token)
	require.Error(t, err)
}

func TestParseSessionTokenExpired(t *testing.T) {
	token, err := NewSessionToken("secret", 42, -time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken("secret", token)
	require.Error(t, err)
}

func authProbe(t *testing.T) (http.Handler, *uint64) {
	t.Helper()

	var seen uint64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return Auth("secret")(next), &seen
}

func TestAuthFromCookie(t *testing.T) {
	h, seen := authProbe(t)
	token, err := NewSessionToken("secret", 7, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(7), *seen)
}

func TestAuthFromBearerFallback(t *testing.T) {
	h, seen := authProbe(t)
	token, err := NewSessionToken("secret", 9, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(9), *seen)
}

func TestAuthMissingSession(t *testing.T) {
	h, _ := authProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":{"kind":"unauthorized","message":"missing session"}}`, rec.Body.String())
}

func TestGetUserIDDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Zero(t, GetUserID(req.Context()))
}
