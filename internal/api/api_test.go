package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/internal/metrics"
	"github.com/careline/careline/internal/presence"
	"github.com/careline/careline/store/message"
	"github.com/careline/careline/store/user"
)

type testAPI struct {
	srv    *httptest.Server
	tokens *auth.Authenticator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	users := user.NewMemStore()
	m := metrics.New(prometheus.NewRegistry())
	engine := chat.NewEngine(message.NewMemStore(), users, presence.New(), chat.WithMetrics(m))
	tokens := auth.NewAuthenticator("api-test-secret-key", "careline", time.Hour)

	srv := httptest.NewServer(NewRouter(Deps{
		Engine:         engine,
		Users:          users,
		Tokens:         tokens,
		Metrics:        m,
		AllowedOrigins: []string{"https://app.example.com"},
	}))
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, tokens: tokens}
}

type response struct {
	Code int
	Body map[string]interface{}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{Code: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.Body))
	}
	return out
}

// register signs up and logs in a user, returning its id and token.
func (a *testAPI) register(t *testing.T, first, email, role string) (string, string) {
	t.Helper()
	res := a.do(t, http.MethodPost, "/api/user/signup", "", map[string]string{
		"firstName": first,
		"lastName":  "Test",
		"email":     email,
		"password":  "correct-horse",
		"role":      role,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)

	res = a.do(t, http.MethodPost, "/api/user/login", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	profile := res.Body["user"].(map[string]interface{})
	return profile["id"].(string), res.Body["token"].(string)
}

func data(t *testing.T, res response) map[string]interface{} {
	t.Helper()
	d, ok := res.Body["data"].(map[string]interface{})
	require.True(t, ok, res.Body)
	return d
}

func list(t *testing.T, res response) []interface{} {
	t.Helper()
	d, ok := res.Body["data"].([]interface{})
	require.True(t, ok, res.Body)
	return d
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestSignupAndLogin(t *testing.T) {
	a := newTestAPI(t)

	res := a.do(t, http.MethodPost, "/api/user/signup", "", map[string]string{
		"firstName": "Ada", "email": "Ada@Example.com", "password": "correct-horse", "role": "doctor",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	created := data(t, res)
	assert.Equal(t, "ada@example.com", created["email"])
	assert.NotContains(t, created, "passwordHash")
	assert.NotContains(t, created, "PasswordHash")

	res = a.do(t, http.MethodPost, "/api/user/signup", "", map[string]string{
		"firstName": "Ada", "email": "ada@example.com", "password": "another-pass", "role": "doctor",
	})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, false, res.Body["status"])
	assert.Equal(t, "conflict", res.Body["kind"])

	res = a.do(t, http.MethodPost, "/api/user/login", "", map[string]string{"email": "ada@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = a.do(t, http.MethodPost, "/api/user/login", "", map[string]string{"email": "nobody@example.com", "password": "whatever1"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = a.do(t, http.MethodPost, "/api/user/login", "", map[string]string{"email": "ada@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 3600, res.Body["expires_in"])

	claims, err := a.tokens.ValidateToken(res.Body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, created["id"], claims.UserID)
	assert.Equal(t, "doctor", claims.Role)
}

func TestSignupValidation(t *testing.T) {
	a := newTestAPI(t)
	bodies := map[string]map[string]string{
		"missing name":   {"email": "x@example.com", "password": "correct-horse"},
		"bad email":      {"firstName": "X", "email": "not-an-email", "password": "correct-horse"},
		"short password": {"firstName": "X", "email": "x@example.com", "password": "short"},
		"unknown role":   {"firstName": "X", "email": "x@example.com", "password": "correct-horse", "role": "admin"},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			res := a.do(t, http.MethodPost, "/api/user/signup", "", body)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			assert.Equal(t, "validation", res.Body["kind"])
		})
	}
}

func TestChatRoutesRequireToken(t *testing.T) {
	a := newTestAPI(t)

	res := a.do(t, http.MethodGet, "/api/chat/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "unauthenticated", res.Body["kind"])

	res = a.do(t, http.MethodGet, "/api/chat/conversations", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestConversationFlow(t *testing.T) {
	a := newTestAPI(t)
	docID, docToken := a.register(t, "Ada", "ada@example.com", "doctor")
	patID, patToken := a.register(t, "Ben", "ben@example.com", "patient")

	res := a.do(t, http.MethodPost, "/api/chat/send", docToken, map[string]string{
		"receiverId": patID, "message": "Hello", "messageType": "text",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, true, res.Body["status"])
	sent := data(t, res)
	assert.Equal(t, chat.ConversationKey(docID, patID), sent["conversationId"])
	assert.Equal(t, false, sent["isRead"])
	assert.Equal(t, "Ada", sent["sender"].(map[string]interface{})["firstName"])

	res = a.do(t, http.MethodGet, "/api/chat/conversations", patToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	convs := list(t, res)
	require.Len(t, convs, 1)
	assert.EqualValues(t, 1, convs[0].(map[string]interface{})["unreadCount"])

	res = a.do(t, http.MethodGet, "/api/chat/history/"+docID+"?page=1&limit=10", patToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	msgs := list(t, res)
	require.Len(t, msgs, 1)
	assert.Equal(t, true, msgs[0].(map[string]interface{})["isRead"])
	assert.Equal(t, map[string]interface{}{"page": float64(1), "limit": float64(10)}, res.Body["pagination"])

	res = a.do(t, http.MethodGet, "/api/chat/conversations", patToken, nil)
	assert.EqualValues(t, 0, list(t, res)[0].(map[string]interface{})["unreadCount"])

	res = a.do(t, http.MethodPut, "/api/chat/mark-read/"+docID, patToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 0, data(t, res)["updated"])

	msgID := sent["id"].(string)
	res = a.do(t, http.MethodDelete, "/api/chat/message/"+msgID, patToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "message not found or unauthorized", res.Body["message"])

	res = a.do(t, http.MethodDelete, "/api/chat/message/"+msgID, docToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = a.do(t, http.MethodGet, "/api/chat/history/"+patID, docToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, list(t, res))

	res = a.do(t, http.MethodGet, "/api/chat/conversations", docToken, nil)
	assert.Empty(t, list(t, res))
}

func TestSendErrors(t *testing.T) {
	a := newTestAPI(t)
	docID, docToken := a.register(t, "Ada", "ada@example.com", "doctor")

	res := a.do(t, http.MethodPost, "/api/chat/send", docToken, map[string]string{"receiverId": "ghost", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = a.do(t, http.MethodPost, "/api/chat/send", docToken, map[string]string{"receiverId": docID, "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = a.do(t, http.MethodGet, "/api/chat/history/ghost?page=abc", docToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = a.do(t, http.MethodGet, "/api/chat/history/ghost?limit=-1", docToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStatus(t *testing.T) {
	a := newTestAPI(t)
	_, token := a.register(t, "Ada", "ada@example.com", "doctor")

	res := a.do(t, http.MethodGet, "/api/chat/status/pat1", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, map[string]interface{}{"userId": "pat1", "isOnline": false}, res.Body["data"])
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, a.srv.URL+"/api/chat/send", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	docID, docToken := a.register(t, "Ada", "ada@example.com", "doctor")
	patID, _ := a.register(t, "Ben", "ben@example.com", "patient")
	require.NotEqual(t, docID, patID)

	res := a.do(t, http.MethodPost, "/api/chat/send", docToken, map[string]string{"receiverId": patID, "message": "Hello"})
	require.Equal(t, http.StatusCreated, res.Code)

	resp, err := http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `careline_chat_messages_sent_total{surface="http"} 1`)
}
