package message

import (
	"context"
	"errors"
	"time"
)

type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeFile  Type = "file"
)

// Valid reports whether t is one of the supported message types.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile:
		return true
	}
	return false
}

// Message is a single direct message between two users.
type Message struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"-"`
	ConversationKey string    `json:"conversationId"`
	SenderID        string    `json:"senderId"`
	ReceiverID      string    `json:"receiverId"`
	Body            string    `json:"message"`
	Type            Type      `json:"messageType"`
	AssetURL        string    `json:"fileUrl"`
	Read            bool      `json:"isRead"`
	Deleted         bool      `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ConversationRow is the per-conversation aggregate backing conversation
// summaries: the newest visible message and the caller's unread count.
type ConversationRow struct {
	Key         string
	Last        *Message
	UnreadCount int
}

var (
	ErrNotFound           = errors.New("message not found")
	ErrUnknownParticipant = errors.New("sender or receiver does not exist")
	ErrInvalidRange       = errors.New("offset and limit must not be negative")
)

// Store defines message persistence operations.
//
// Every read except Find hides soft-deleted messages.
type Store interface {
	// Create persists m and fills in Seq, CreatedAt and UpdatedAt.
	Create(ctx context.Context, m *Message) error
	// Find returns a message by id, including soft-deleted ones.
	Find(ctx context.Context, id string) (*Message, error)
	// ListConversation returns visible messages newest first. A negative
	// offset or limit yields ErrInvalidRange.
	ListConversation(ctx context.Context, key string, offset, limit int) ([]*Message, error)
	// MarkRead flips every unread message in the conversation addressed to
	// receiverID to read and returns how many changed.
	MarkRead(ctx context.Context, key, receiverID string) (int64, error)
	// SoftDelete tombstones a message owned by senderID. It returns
	// ErrNotFound when no such message exists for that sender.
	SoftDelete(ctx context.Context, id, senderID string) error
	// Conversations returns one row per conversation userID takes part in,
	// most recently active first.
	Conversations(ctx context.Context, userID string) ([]*ConversationRow, error)
}
