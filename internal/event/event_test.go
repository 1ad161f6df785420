package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline/careline/internal/apperr"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{
			name:  "send message",
			frame: `{"event":"sendMessage","data":{"receiverId":"pat1","message":"Hello","messageType":"text"}}`,
			want:  SendMessage{ReceiverID: "pat1", Message: "Hello", MessageType: "text"},
		},
		{
			name:  "typing",
			frame: `{"event":"typing","data":{"receiverId":"doc1","isTyping":true}}`,
			want:  Typing{ReceiverID: "doc1", IsTyping: true},
		},
		{
			name:  "mark as read",
			frame: `{"event":"markAsRead","data":{"senderId":"doc1"}}`,
			want:  MarkAsRead{SenderID: "doc1"},
		},
		{
			name:  "user status",
			frame: `{"event":"getUserStatus","data":{"userId":"pat1"}}`,
			want:  GetUserStatus{UserID: "pat1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	frames := map[string]string{
		"not json":        `hello`,
		"missing name":    `{"data":{}}`,
		"unknown event":   `{"event":"deleteEverything","data":{}}`,
		"missing payload": `{"event":"typing"}`,
		"unknown field":   `{"event":"typing","data":{"receiverId":"a","isTyping":true,"extra":1}}`,
		"wrong type":      `{"event":"typing","data":{"receiverId":"a","isTyping":"yes"}}`,
		"blank receiver":  `{"event":"sendMessage","data":{"receiverId":"  ","message":"hi"}}`,
		"blank sender":    `{"event":"markAsRead","data":{"senderId":""}}`,
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestEncodeOutbound(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	frame, err := Encode(MessageSent{MessageID: "m1", ConversationID: "doc1_pat1", CreatedAt: at, Status: "sent"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, NameMessageSent, env.Event)
	assert.JSONEq(t, `{"messageId":"m1","conversationId":"doc1_pat1","createdAt":"2025-05-01T12:00:00Z","status":"sent"}`, string(env.Data))
}

func TestEncodeNewMessageInlinesPayload(t *testing.T) {
	frame, err := Encode(NewMessage{Message: map[string]string{"id": "m1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"newMessage","data":{"id":"m1"}}`, string(frame))
}

func TestErrorFromHidesInternals(t *testing.T) {
	e := ErrorFrom(apperr.Internal(assert.AnError, "boom"))
	assert.Equal(t, "boom", e.Message)
	assert.Equal(t, "internal", e.Kind)

	e = ErrorFrom(assert.AnError)
	assert.Equal(t, "internal server error", e.Message)
}
