package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "careline.chat.message.created", subject("careline.chat"))
}

func TestMessageCreatedWireFormat(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	data, err := json.Marshal(MessageCreated{
		MessageID:      "m1",
		ConversationID: "doc1_pat1",
		SenderID:       "doc1",
		ReceiverID:     "pat1",
		MessageType:    "text",
		CreatedAt:      at,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"messageId":"m1","conversationId":"doc1_pat1","senderId":"doc1","receiverId":"pat1",
		"messageType":"text","delivered":false,"createdAt":"2025-06-01T08:30:00Z"}`, string(data))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishMessageCreated(context.Background(), MessageCreated{}))
	p.Close()
}

func TestNewNatsPublisherWrapsDialError(t *testing.T) {
	_, err := NewNatsPublisher("nats://127.0.0.1:1", "careline.chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to nats: ")
	assert.NotEqual(t, err, errors.Cause(err))
}
