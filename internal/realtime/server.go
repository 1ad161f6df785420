// Package realtime serves the bidirectional event surface over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/internal/config"
	"github.com/careline/careline/internal/metrics"
)

// Server upgrades authenticated requests and runs one Client per connection.
type Server struct {
	engine   *chat.Engine
	ident    auth.Identifier
	cfg      config.RealtimeConfig
	metrics  *metrics.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a Server. A nil logger or metrics is allowed.
func NewServer(engine *chat.Engine, ident auth.Identifier, cfg config.RealtimeConfig, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		ident:   ident,
		cfg:     cfg,
		metrics: m,
		log:     log.Named("realtime"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP authenticates the request, upgrades it and blocks until the
// connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.ident.Authenticate(r)
	if err != nil {
		s.reject(w, apperr.Unauthenticated("authentication required"))
		return
	}
	if err := chat.ValidateUserID("userId", userID); err != nil {
		s.reject(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(s, conn, userID)
	go c.writePump()

	if err := s.engine.Connect(userID, c); err != nil {
		c.close()
		return
	}
	s.metrics.ConnectionOpened()
	c.log.Info("client connected")

	defer func() {
		s.engine.Disconnect(userID, c)
		c.close()
		s.metrics.ConnectionClosed()
		c.log.Info("client disconnected")
	}()

	c.readPump(context.WithoutCancel(r.Context()))
}

func (s *Server) reject(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  false,
		"kind":    kind,
		"message": apperr.Message(err),
	})
}
