// Package event defines the wire protocol of the bidirectional chat surface.
//
// Frames are JSON envelopes {"event": name, "data": payload}. Inbound and
// outbound events are closed sets: Decode rejects anything it does not know,
// and only the Outbound types below can be written to a connection.
package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/careline/careline/internal/apperr"
)

// Envelope is the framing shared by both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	NameSendMessage   = "sendMessage"
	NameTyping        = "typing"
	NameMarkAsRead    = "markAsRead"
	NameGetUserStatus = "getUserStatus"
)

// Outbound event names.
const (
	NameNewMessage           = "newMessage"
	NameMessageSent          = "messageSent"
	NameUserTyping           = "userTyping"
	NameMessagesRead         = "messagesRead"
	NameMessagesMarkedAsRead = "messagesMarkedAsRead"
	NameUserStatus           = "userStatus"
	NameUserOnline           = "userOnline"
	NameUserOffline          = "userOffline"
	NameError                = "error"
)

// Inbound is an event sent by a client.
type Inbound interface {
	EventName() string
	validate() error
}

type SendMessage struct {
	ReceiverID  string `json:"receiverId"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
}

func (SendMessage) EventName() string { return NameSendMessage }

func (e SendMessage) validate() error {
	if strings.TrimSpace(e.ReceiverID) == "" {
		return apperr.Validation("receiverId is required")
	}
	return nil
}

type Typing struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

func (Typing) EventName() string { return NameTyping }

func (e Typing) validate() error {
	if strings.TrimSpace(e.ReceiverID) == "" {
		return apperr.Validation("receiverId is required")
	}
	return nil
}

type MarkAsRead struct {
	SenderID string `json:"senderId"`
}

func (MarkAsRead) EventName() string { return NameMarkAsRead }

func (e MarkAsRead) validate() error {
	if strings.TrimSpace(e.SenderID) == "" {
		return apperr.Validation("senderId is required")
	}
	return nil
}

type GetUserStatus struct {
	UserID string `json:"userId"`
}

func (GetUserStatus) EventName() string { return NameGetUserStatus }

func (e GetUserStatus) validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return apperr.Validation("userId is required")
	}
	return nil
}

// Decode parses and validates one inbound frame.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, apperr.Validation("malformed frame")
	}

	var in Inbound
	switch env.Event {
	case NameSendMessage:
		var e SendMessage
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		in = e
	case NameTyping:
		var e Typing
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		in = e
	case NameMarkAsRead:
		var e MarkAsRead
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		in = e
	case NameGetUserStatus:
		var e GetUserStatus
		if err := decodeData(env.Data, &e); err != nil {
			return nil, err
		}
		in = e
	case "":
		return nil, apperr.Validation("event name is required")
	default:
		return nil, apperr.Validation("unknown event %q", env.Event)
	}

	if err := in.validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperr.Validation("event payload is required")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed event payload")
	}
	return nil
}

// Outbound is an event written to a client.
type Outbound interface {
	EventName() string
	outbound()
}

// NewMessage carries a message view; the payload is marshalled as-is.
type NewMessage struct {
	Message interface{}
}

func (NewMessage) EventName() string { return NameNewMessage }
func (NewMessage) outbound()         {}

func (e NewMessage) MarshalJSON() ([]byte, error) { return json.Marshal(e.Message) }

type MessageSent struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         string    `json:"status"`
}

func (MessageSent) EventName() string { return NameMessageSent }
func (MessageSent) outbound()         {}

type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) EventName() string { return NameUserTyping }
func (UserTyping) outbound()         {}

type MessagesRead struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

func (MessagesRead) EventName() string { return NameMessagesRead }
func (MessagesRead) outbound()         {}

type MessagesMarkedAsRead struct {
	ConversationID string `json:"conversationId"`
}

func (MessagesMarkedAsRead) EventName() string { return NameMessagesMarkedAsRead }
func (MessagesMarkedAsRead) outbound()         {}

type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func (UserStatus) EventName() string { return NameUserStatus }
func (UserStatus) outbound()         {}

type UserOnline struct {
	UserID string `json:"userId"`
}

func (UserOnline) EventName() string { return NameUserOnline }
func (UserOnline) outbound()         {}

type UserOffline struct {
	UserID string `json:"userId"`
}

func (UserOffline) EventName() string { return NameUserOffline }
func (UserOffline) outbound()         {}

type Error struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (Error) EventName() string { return NameError }
func (Error) outbound()         {}

// ErrorFrom converts an operation failure into an error event.
func ErrorFrom(err error) Error {
	return Error{Message: apperr.Message(err), Kind: string(apperr.KindOf(err))}
}

// Encode frames an outbound event.
func Encode(e Outbound) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.EventName(), Data: data})
}
