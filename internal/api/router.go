// Package api serves the request/response surface of the chat service.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/internal/metrics"
	"github.com/careline/careline/store/user"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Engine *chat.Engine
	Users  user.Store
	Tokens *auth.Authenticator
	// Realtime serves /ws; nil leaves the route out.
	Realtime http.Handler
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string
}

type handler struct {
	engine *chat.Engine
	users  user.Store
	tokens *auth.Authenticator
	log    *zap.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(d Deps) *mux.Router {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")
	h := &handler{engine: d.Engine, users: d.Users, tokens: d.Tokens, log: log}

	r := mux.NewRouter()
	r.Use(accessLog(log), cors(d.AllowedOrigins))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, apperr.NotFound("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Status: false, Kind: "method_not_allowed", Message: "method not allowed"})
	})

	r.HandleFunc("/health", health).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}
	if d.Realtime != nil {
		r.Handle("/ws", d.Realtime).Methods(http.MethodGet)
	}

	users := r.PathPrefix("/api/user").Subrouter()
	users.HandleFunc("/signup", h.signup).Methods(http.MethodPost, http.MethodOptions)
	users.HandleFunc("/login", h.login).Methods(http.MethodPost, http.MethodOptions)

	chatRoutes := r.PathPrefix("/api/chat").Subrouter()
	chatRoutes.Use(auth.Middleware(d.Tokens, func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, apperr.Unauthenticated("authentication required"))
	}))
	chatRoutes.HandleFunc("/send", h.send).Methods(http.MethodPost, http.MethodOptions)
	chatRoutes.HandleFunc("/history/{userId}", h.history).Methods(http.MethodGet, http.MethodOptions)
	chatRoutes.HandleFunc("/conversations", h.conversations).Methods(http.MethodGet, http.MethodOptions)
	chatRoutes.HandleFunc("/mark-read/{userId}", h.markRead).Methods(http.MethodPut, http.MethodOptions)
	chatRoutes.HandleFunc("/message/{messageId}", h.deleteMessage).Methods(http.MethodDelete, http.MethodOptions)
	chatRoutes.HandleFunc("/status/{userId}", h.status).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The websocket upgrade needs the raw writer for hijacking.
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func cors(allowed []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Session-Token")
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
