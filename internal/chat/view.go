package chat

import (
	"time"

	"github.com/careline/careline/store/message"
	"github.com/careline/careline/store/user"
)

// MessageView is a message with both participants expanded to display
// profiles. It is the shape returned by both surfaces.
type MessageView struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Sender         user.Profile `json:"sender"`
	Receiver       user.Profile `json:"receiver"`
	Message        string       `json:"message"`
	MessageType    message.Type `json:"messageType"`
	FileURL        string       `json:"fileUrl"`
	IsRead         bool         `json:"isRead"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func newView(m *message.Message, profiles map[string]user.Profile) *MessageView {
	return &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationKey,
		Sender:         profileOf(profiles, m.SenderID),
		Receiver:       profileOf(profiles, m.ReceiverID),
		Message:        m.Body,
		MessageType:    m.Type,
		FileURL:        m.AssetURL,
		IsRead:         m.Read,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// profileOf falls back to a bare id for accounts that no longer resolve.
func profileOf(profiles map[string]user.Profile, id string) user.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return user.Profile{ID: id}
}

// HistoryPage is one page of a conversation in chronological order.
type HistoryPage struct {
	Messages []*MessageView `json:"data"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
}

// LastMessage summarizes the newest message of a conversation.
type LastMessage struct {
	ID          string       `json:"id"`
	Message     string       `json:"message"`
	MessageType message.Type `json:"messageType"`
	SenderID    string       `json:"senderId"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ConversationSummary is one entry of a user's conversation list.
type ConversationSummary struct {
	ConversationID string       `json:"conversationId"`
	OtherUser      user.Profile `json:"otherUser"`
	LastMessage    LastMessage  `json:"lastMessage"`
	UnreadCount    int          `json:"unreadCount"`
}

// ReadReceipt reports the outcome of a mark-read.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	Updated        int64  `json:"updated"`
}
