// Package chat implements direct messaging between two users: persistence
// of messages, read state, soft deletion, and best-effort live delivery to
// connected users through the presence registry.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/internal/event"
	"github.com/careline/careline/internal/metrics"
	"github.com/careline/careline/internal/notify"
	"github.com/careline/careline/internal/presence"
	"github.com/careline/careline/store/message"
	"github.com/careline/careline/store/user"
)

// Surfaces a message can be sent through.
const (
	SurfaceHTTP      = "http"
	SurfaceWebsocket = "websocket"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultPageLimit    = 50
	maxPageLimit        = 100
)

// Engine orchestrates message storage, read state and live delivery.
type Engine struct {
	messages  message.Store
	users     user.Directory
	presence  *presence.Registry
	publisher notify.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger

	storeTimeout time.Duration
	defaultLimit int
	maxLimit     int
	newID        func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics records store latency, sends and deliveries on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPublisher sets where message.created events go.
func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithHistoryLimits sets the default and maximum history page size.
func WithHistoryLimits(def, max int) Option {
	return func(e *Engine) {
		if def > 0 && max >= def {
			e.defaultLimit = def
			e.maxLimit = max
		}
	}
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(messages message.Store, users user.Directory, reg *presence.Registry, opts ...Option) *Engine {
	e := &Engine{
		messages:     messages,
		users:        users,
		presence:     reg,
		publisher:    notify.Nop{},
		log:          zap.NewNop(),
		storeTimeout: defaultStoreTimeout,
		defaultLimit: defaultPageLimit,
		maxLimit:     maxPageLimit,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("chat")
	return e
}

// storeCtx derives the context for one store call. It ignores the caller's
// cancellation and is bounded by the store timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
}

// storeErr converts an unexpected store failure into a transient error.
func (e *Engine) storeErr(op string, err error) error {
	e.log.Warn("store operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Transient(err, "message store unavailable, retry later")
}

// profiles resolves display profiles for ids.
func (e *Engine) profiles(ctx context.Context, ids ...string) (map[string]user.Profile, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	profiles, err := e.users.GetProfiles(sctx, ids)
	e.metrics.ObserveStore("get_profiles", start, err)
	if err != nil {
		return nil, e.storeErr("get_profiles", err)
	}
	return profiles, nil
}

// deliver pushes ev to userID's live channel, if any.
func (e *Engine) deliver(userID string, ev event.Outbound) bool {
	ch, ok := e.presence.Lookup(userID)
	if !ok {
		e.metrics.Delivery(metrics.DeliveryOffline)
		return false
	}
	if !ch.Deliver(ev) {
		e.metrics.Delivery(metrics.DeliveryDropped)
		e.log.Debug("live delivery dropped",
			zap.String("user_id", userID), zap.String("event", ev.EventName()))
		return false
	}
	e.metrics.Delivery(metrics.DeliveryDelivered)
	return true
}

// publish emits the message.created domain event. Failures are reported
// and never fail the send.
func (e *Engine) publish(ctx context.Context, v *MessageView, delivered bool) {
	pctx, cancel := e.storeCtx(ctx)
	defer cancel()
	err := e.publisher.PublishMessageCreated(pctx, notify.MessageCreated{
		MessageID:      v.ID,
		ConversationID: v.ConversationID,
		SenderID:       v.Sender.ID,
		ReceiverID:     v.Receiver.ID,
		MessageType:    string(v.MessageType),
		Delivered:      delivered,
		CreatedAt:      v.CreatedAt,
	})
	if err != nil {
		e.log.Warn("publish message.created failed",
			zap.String("message_id", v.ID), zap.Error(apperr.Upstream(err, "event publisher")))
	}
}
