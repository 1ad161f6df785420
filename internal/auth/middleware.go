package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identifier resolves the user behind a request.
type Identifier interface {
	Authenticate(r *http.Request) (string, error)
}

type ctxKey struct{}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom returns the authenticated user id stored by Middleware.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// TokenFromRequest extracts a token from X-Session-Token, a Bearer
// Authorization header, or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("X-Session-Token"))
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return token
}

// Authenticate validates the request token and returns its user id.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return "", ErrMissingToken
	}
	claims, err := a.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// QueryUser trusts a raw userId query parameter and falls back to Next when
// it is absent. It exists for local development clients only.
type QueryUser struct {
	Next Identifier
}

// Authenticate returns the userId query parameter or defers to Next.
func (q QueryUser) Authenticate(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.URL.Query().Get("userId")); id != "" {
		return id, nil
	}
	if q.Next == nil {
		return "", ErrMissingToken
	}
	return q.Next.Authenticate(r)
}

// Middleware rejects unauthenticated requests through deny and stores the
// user id in the request context otherwise.
func Middleware(id Identifier, deny func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := id.Authenticate(r)
			if err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
