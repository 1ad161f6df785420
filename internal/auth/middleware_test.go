package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromRequestPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	assert.Equal(t, "query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", TokenFromRequest(r))

	r.Header.Set("X-Session-Token", "session")
	assert.Equal(t, "session", TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator("super-secret-key", "careline", time.Hour)
	token, err := a.GenerateToken("pat1", "patient")
	require.NoError(t, err)

	var denied error
	h := Middleware(a, func(w http.ResponseWriter, r *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pat1", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.ErrorIs(t, denied, ErrMissingToken)
}

func TestQueryUser(t *testing.T) {
	a := NewAuthenticator("super-secret-key", "careline", time.Hour)
	q := QueryUser{Next: a}

	id, err := q.Authenticate(httptest.NewRequest(http.MethodGet, "/ws?userId=doctor1", nil))
	require.NoError(t, err)
	assert.Equal(t, "doctor1", id)

	token, _ := a.GenerateToken("pat1", "patient")
	id, err = q.Authenticate(httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, "pat1", id)

	_, err = QueryUser{}.Authenticate(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}
