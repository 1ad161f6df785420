// Package notify publishes chat domain events for out-of-band consumers
// such as push or email notification workers.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// MessageCreated is published once per persisted message. Delivered reports
// whether the receiver had a live channel at send time, so downstream
// workers can notify offline recipients only.
type MessageCreated struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	MessageType    string    `json:"messageType"`
	Delivered      bool      `json:"delivered"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Publisher emits domain events.
type Publisher interface {
	PublishMessageCreated(ctx context.Context, ev MessageCreated) error
	Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishMessageCreated(context.Context, MessageCreated) error { return nil }
func (Nop) Close()                                                      {}

// NatsPublisher publishes events on a NATS subject prefix.
type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNatsPublisher connects to url. Events go to "<prefix>.message.created".
func NewNatsPublisher(url, prefix string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("careline-chat"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, errors.Wrap(err, "connect to nats")
	}
	return &NatsPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject MessageCreated events are published on.
func (p *NatsPublisher) Subject() string {
	return subject(p.prefix)
}

func subject(prefix string) string {
	return prefix + ".message.created"
}

// PublishMessageCreated sends ev as JSON on Subject.
func (p *NatsPublisher) PublishMessageCreated(ctx context.Context, ev MessageCreated) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal message.created")
	}
	if err := p.nc.Publish(p.Subject(), data); err != nil {
		return errors.Wrapf(err, "publish to %s", p.Subject())
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NatsPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
