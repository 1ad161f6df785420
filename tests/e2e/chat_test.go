//go:build integration

package e2e

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline/careline/tests/testutil"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, acct *testutil.Account) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(testutil.WSAddr()+"?token="+acct.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, name string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Event: name, Data: raw}))
}

func await(t *testing.T, conn *websocket.Conn, name string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var env envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", name)
		if env.Event != name {
			continue
		}
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(env.Data, &out))
		return out
	}
}

func getJSON(t *testing.T, path, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, testutil.Addr()+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestLiveConversation(t *testing.T) {
	doc, err := testutil.Register("Ada", "doctor")
	require.NoError(t, err)
	pat, err := testutil.Register("Ben", "patient")
	require.NoError(t, err)

	nc, err := nats.Connect(testutil.NatsURL())
	require.NoError(t, err)
	defer nc.Close()
	created := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("careline.chat.message.created", created)
	require.NoError(t, err)
	defer func() {
		_ = sub.Unsubscribe()
	}()
	require.NoError(t, nc.Flush())

	docConn := dial(t, doc)
	patConn := dial(t, pat)
	online := await(t, docConn, "userOnline")
	require.Equal(t, pat.ID, online["userId"])

	emit(t, docConn, "sendMessage", map[string]string{"receiverId": pat.ID, "message": "How is the new dosage?"})
	sent := await(t, docConn, "messageSent")
	incoming := await(t, patConn, "newMessage")
	assert.Equal(t, sent["messageId"], incoming["id"])
	assert.Equal(t, "How is the new dosage?", incoming["message"])

	select {
	case msg := <-created:
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, sent["messageId"], ev["messageId"])
		assert.Equal(t, true, ev["delivered"])
	case <-time.After(5 * time.Second):
		t.Fatal("no message.created event published")
	}

	convs := getJSON(t, "/api/chat/conversations", pat.Token)
	list := convs["data"].([]interface{})
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, list[0].(map[string]interface{})["unreadCount"])

	emit(t, patConn, "markAsRead", map[string]string{"senderId": doc.ID})
	await(t, patConn, "messagesMarkedAsRead")
	read := await(t, docConn, "messagesRead")
	assert.Equal(t, pat.ID, read["readBy"])

	history := getJSON(t, "/api/chat/history/"+pat.ID, doc.Token)
	msgs := history["data"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, true, msgs[0].(map[string]interface{})["isRead"])

	require.NoError(t, patConn.Close())
	offline := await(t, docConn, "userOffline")
	assert.Equal(t, pat.ID, offline["userId"])
}
