package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/internal/event"
	"github.com/careline/careline/store/message"
)

// Client is one websocket connection of an authenticated user. It satisfies
// presence.Channel.
type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	srv     *Server
	log     *zap.Logger
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(srv *Server, conn *websocket.Conn, userID string) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		conn:    conn,
		srv:     srv,
		log:     srv.log.With(zap.String("user_id", userID), zap.String("connection", id)),
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.EventsPerSecond), srv.cfg.EventBurst),
		send:    make(chan []byte, srv.cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

// ID identifies this connection in the presence registry.
func (c *Client) ID() string { return c.id }

// Deliver queues ev for the write pump. It never blocks: a closed client or a
// full queue rejects the event.
func (c *Client) Deliver(ev event.Outbound) bool {
	frame, err := event.Encode(ev)
	if err != nil {
		c.log.Error("encode event", zap.String("event", ev.EventName()), zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn("send queue full, dropping event", zap.String("event", ev.EventName()))
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads frames until the connection fails or closes.
func (c *Client) readPump(ctx context.Context) {
	cfg := c.srv.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("websocket read error", zap.Error(err))
			} else {
				c.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.reply(event.ErrorFrom(apperr.RateLimited("too many events, slow down")))
			continue
		}
		c.handle(ctx, frame)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
// It owns every write to conn.
func (c *Client) writePump() {
	cfg := c.srv.cfg
	ticker := time.NewTicker(cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket ping error", zap.Error(err))
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.WriteWait))
			return
		}
	}
}

func (c *Client) reply(ev event.Outbound) {
	c.Deliver(ev)
}

func (c *Client) fail(name string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindTransient, apperr.KindUpstream, apperr.KindInternal:
		c.log.Warn("event failed", zap.String("event", name), zap.Error(err))
	default:
		c.log.Debug("event rejected", zap.String("event", name), zap.Error(err))
	}
	c.reply(event.ErrorFrom(err))
}

// handle dispatches one inbound frame. Results and failures go back to this
// connection only.
func (c *Client) handle(ctx context.Context, frame []byte) {
	in, err := event.Decode(frame)
	if err != nil {
		c.fail("decode", err)
		return
	}
	c.srv.metrics.EventReceived(in.EventName())
	engine := c.srv.engine

	switch ev := in.(type) {
	case event.SendMessage:
		v, err := engine.SendLive(ctx, c.userID, chat.SendInput{
			ReceiverID: ev.ReceiverID,
			Body:       ev.Message,
			Type:       message.Type(ev.MessageType),
			AssetURL:   ev.FileURL,
		})
		if err != nil {
			c.fail(ev.EventName(), err)
			return
		}
		c.reply(event.MessageSent{
			MessageID:      v.ID,
			ConversationID: v.ConversationID,
			CreatedAt:      v.CreatedAt,
			Status:         "sent",
		})

	case event.Typing:
		if err := engine.Typing(c.userID, ev.ReceiverID, ev.IsTyping); err != nil {
			c.fail(ev.EventName(), err)
		}

	case event.MarkAsRead:
		receipt, err := engine.MarkReadLive(ctx, c.userID, ev.SenderID)
		if err != nil {
			c.fail(ev.EventName(), err)
			return
		}
		c.reply(event.MessagesMarkedAsRead{ConversationID: receipt.ConversationID})

	case event.GetUserStatus:
		online, err := engine.IsOnline(ev.UserID)
		if err != nil {
			c.fail(ev.EventName(), err)
			return
		}
		c.reply(event.UserStatus{UserID: ev.UserID, IsOnline: online})
	}
}
