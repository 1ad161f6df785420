package chat

import (
	"go.uber.org/zap"

	"github.com/careline/careline/internal/event"
	"github.com/careline/careline/internal/presence"
)

// Connect binds ch as userID's live channel. Everyone else online is told
// the user came online, unless the user already had a channel.
func (e *Engine) Connect(userID string, ch presence.Channel) error {
	if err := ValidateUserID("userId", userID); err != nil {
		return err
	}
	prev, replaced := e.presence.Register(userID, ch)
	if replaced {
		e.log.Info("connection replaced",
			zap.String("user_id", userID), zap.String("previous", prev.ID()), zap.String("current", ch.ID()))
		return nil
	}
	e.log.Info("user online", zap.String("user_id", userID), zap.String("connection", ch.ID()))
	e.broadcast(userID, event.UserOnline{UserID: userID})
	return nil
}

// Disconnect releases ch. It reports whether userID went offline; a channel
// that was already superseded changes nothing.
func (e *Engine) Disconnect(userID string, ch presence.Channel) bool {
	if !e.presence.Unregister(userID, ch) {
		return false
	}
	e.log.Info("user offline", zap.String("user_id", userID), zap.String("connection", ch.ID()))
	e.broadcast(userID, event.UserOffline{UserID: userID})
	return true
}

// Typing relays a typing indicator to receiverID when they are online.
// Nothing is stored.
func (e *Engine) Typing(senderID, receiverID string, isTyping bool) error {
	if err := participants(senderID, receiverID); err != nil {
		return err
	}
	e.deliver(receiverID, event.UserTyping{UserID: senderID, IsTyping: isTyping})
	return nil
}

// IsOnline reports whether userID has a live channel.
func (e *Engine) IsOnline(userID string) (bool, error) {
	if err := ValidateUserID("userId", userID); err != nil {
		return false, err
	}
	return e.presence.IsOnline(userID), nil
}

// broadcast sends ev to every online user except the subject.
func (e *Engine) broadcast(subject string, ev event.Outbound) {
	e.presence.Each(func(userID string, ch presence.Channel) {
		if userID == subject {
			return
		}
		ch.Deliver(ev)
	})
}
