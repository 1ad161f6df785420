package chat

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/internal/event"
	"github.com/careline/careline/store/message"
	"github.com/careline/careline/store/user"
)

// MaxBodyLength is the longest accepted message body, in characters.
const MaxBodyLength = 5000

// SendInput is a message as submitted by a client.
type SendInput struct {
	ReceiverID string
	Body       string
	Type       message.Type
	AssetURL   string
}

// normalize trims the input and applies the content rules: text messages
// need a body, image and file messages need an absolute http(s) asset URL.
func (in *SendInput) normalize(senderID string) error {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.Body = strings.TrimSpace(in.Body)
	in.AssetURL = strings.TrimSpace(in.AssetURL)
	if in.Type == "" {
		in.Type = message.TypeText
	}

	if err := ValidateUserID("sender", senderID); err != nil {
		return err
	}
	if err := ValidateUserID("receiverId", in.ReceiverID); err != nil {
		return err
	}
	if senderID == in.ReceiverID {
		return apperr.Validation("cannot send a message to yourself")
	}
	if !in.Type.Valid() {
		return apperr.Validation("messageType must be one of text, image, file")
	}
	if utf8.RuneCountInString(in.Body) > MaxBodyLength {
		return apperr.Validation("message must be at most %d characters", MaxBodyLength)
	}

	if in.Type == message.TypeText {
		if in.Body == "" {
			return apperr.Validation("message is required")
		}
		return nil
	}
	if in.AssetURL == "" {
		return apperr.Validation("fileUrl is required for %s messages", in.Type)
	}
	u, err := url.Parse(in.AssetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("fileUrl must be an absolute http(s) URL")
	}
	return nil
}

// Send persists a message without attempting live delivery.
func (e *Engine) Send(ctx context.Context, senderID string, in SendInput) (*MessageView, error) {
	v, err := e.persist(ctx, senderID, in)
	if err != nil {
		return nil, err
	}
	e.metrics.MessageSent(SurfaceHTTP)
	e.publish(ctx, v, false)
	return v, nil
}

// SendLive persists a message and pushes it to the receiver when they are
// online. An offline receiver is not an error; the message stays available
// through History.
func (e *Engine) SendLive(ctx context.Context, senderID string, in SendInput) (*MessageView, error) {
	v, err := e.persist(ctx, senderID, in)
	if err != nil {
		return nil, err
	}
	e.metrics.MessageSent(SurfaceWebsocket)
	delivered := e.deliver(v.Receiver.ID, event.NewMessage{Message: v})
	e.publish(ctx, v, delivered)
	return v, nil
}

func (e *Engine) persist(ctx context.Context, senderID string, in SendInput) (*MessageView, error) {
	if err := in.normalize(senderID); err != nil {
		return nil, err
	}

	profiles, err := e.profiles(ctx, senderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[in.ReceiverID]; !ok {
		return nil, apperr.NotFound("receiver not found")
	}
	if _, ok := profiles[senderID]; !ok {
		return nil, apperr.NotFound("sender account not found")
	}

	m := &message.Message{
		ID:              e.newID(),
		ConversationKey: ConversationKey(senderID, in.ReceiverID),
		SenderID:        senderID,
		ReceiverID:      in.ReceiverID,
		Body:            in.Body,
		Type:            in.Type,
		AssetURL:        in.AssetURL,
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	err = e.messages.Create(sctx, m)
	e.metrics.ObserveStore("create", start, err)
	if err != nil {
		if errors.Is(err, message.ErrUnknownParticipant) {
			return nil, apperr.NotFound("receiver not found")
		}
		return nil, e.storeErr("create", err)
	}

	e.log.Debug("message stored",
		zap.String("message_id", m.ID),
		zap.String("conversation", m.ConversationKey),
		zap.String("type", string(m.Type)))
	return newView(m, profiles), nil
}

// History returns one page of the conversation between currentID and
// otherID, oldest first. Opening a conversation marks every message
// addressed to currentID as read before the page is loaded, so the page
// reflects that.
//
// A zero page or limit selects the defaults; limits above the maximum are
// clamped.
func (e *Engine) History(ctx context.Context, currentID, otherID string, page, limit int) (*HistoryPage, error) {
	if err := participants(currentID, otherID); err != nil {
		return nil, err
	}
	if page < 0 || limit < 0 {
		return nil, apperr.Validation("page and limit must not be negative")
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	if page-1 > math.MaxInt/limit {
		return nil, apperr.Validation("page out of range")
	}

	key := ConversationKey(currentID, otherID)
	if _, err := e.markRead(ctx, key, currentID); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	list, err := e.messages.ListConversation(sctx, key, (page-1)*limit, limit)
	e.metrics.ObserveStore("list_conversation", start, err)
	if err != nil {
		return nil, e.storeErr("list_conversation", err)
	}

	profiles, err := e.profiles(ctx, currentID, otherID)
	if err != nil {
		return nil, err
	}

	views := make([]*MessageView, len(list))
	for i, m := range list {
		views[len(list)-1-i] = newView(m, profiles)
	}
	return &HistoryPage{Messages: views, Page: page, Limit: limit}, nil
}

// Conversations lists every conversation currentID takes part in, most
// recently active first.
func (e *Engine) Conversations(ctx context.Context, currentID string) ([]ConversationSummary, error) {
	if err := ValidateUserID("current user", currentID); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := e.messages.Conversations(sctx, currentID)
	e.metrics.ObserveStore("conversations", start, err)
	if err != nil {
		return nil, e.storeErr("conversations", err)
	}

	others := make([]string, 0, len(rows))
	for _, row := range rows {
		others = append(others, otherParticipant(row.Last, currentID))
	}
	profiles := map[string]user.Profile{}
	if len(others) > 0 {
		if profiles, err = e.profiles(ctx, others...); err != nil {
			return nil, err
		}
	}

	out := make([]ConversationSummary, 0, len(rows))
	for i, row := range rows {
		out = append(out, ConversationSummary{
			ConversationID: row.Key,
			OtherUser:      profileOf(profiles, others[i]),
			LastMessage: LastMessage{
				ID:          row.Last.ID,
				Message:     row.Last.Body,
				MessageType: row.Last.Type,
				SenderID:    row.Last.SenderID,
				CreatedAt:   row.Last.CreatedAt,
			},
			UnreadCount: row.UnreadCount,
		})
	}
	return out, nil
}

func otherParticipant(m *message.Message, currentID string) string {
	if m.SenderID == currentID {
		return m.ReceiverID
	}
	return m.SenderID
}

// MarkRead marks every message otherID sent to currentID as read. Repeated
// calls change nothing.
func (e *Engine) MarkRead(ctx context.Context, currentID, otherID string) (*ReadReceipt, error) {
	if err := participants(currentID, otherID); err != nil {
		return nil, err
	}
	key := ConversationKey(currentID, otherID)
	n, err := e.markRead(ctx, key, currentID)
	if err != nil {
		return nil, err
	}
	return &ReadReceipt{ConversationID: key, Updated: n}, nil
}

// MarkReadLive is MarkRead followed by a messagesRead notice to otherID
// when they are online.
func (e *Engine) MarkReadLive(ctx context.Context, currentID, otherID string) (*ReadReceipt, error) {
	receipt, err := e.MarkRead(ctx, currentID, otherID)
	if err != nil {
		return nil, err
	}
	e.deliver(otherID, event.MessagesRead{ConversationID: receipt.ConversationID, ReadBy: currentID})
	return receipt, nil
}

func (e *Engine) markRead(ctx context.Context, key, receiverID string) (int64, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := e.messages.MarkRead(sctx, key, receiverID)
	e.metrics.ObserveStore("mark_read", start, err)
	if err != nil {
		return 0, e.storeErr("mark_read", err)
	}
	if n > 0 {
		e.log.Debug("messages marked read",
			zap.String("conversation", key), zap.String("reader", receiverID), zap.Int64("count", n))
	}
	return n, nil
}

// Delete soft-deletes a message sent by requesterID. Unknown ids and
// messages sent by someone else are indistinguishable to the caller.
func (e *Engine) Delete(ctx context.Context, requesterID, messageID string) error {
	if err := ValidateUserID("current user", requesterID); err != nil {
		return err
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return apperr.Validation("messageId is required")
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	err := e.messages.SoftDelete(sctx, messageID, requesterID)
	e.metrics.ObserveStore("soft_delete", start, err)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return apperr.NotFound("message not found or unauthorized")
		}
		return e.storeErr("soft_delete", err)
	}
	e.log.Info("message deleted", zap.String("message_id", messageID), zap.String("sender", requesterID))
	return nil
}
