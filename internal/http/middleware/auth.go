package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

type contextKey string

// SessionKey is the context key for the authenticated session.
const SessionKey contextKey = "session"

// Authenticator resolves an access token to a live session.
// *auth.SessionService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.SessionContext, error)
}

// Auth creates middleware that requires a valid access token.
// Checks Authorization header first, then falls back to cookie for web clients.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := httputil.AccessToken(r)
			if token == "" {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			sess, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// OptionalAuth attaches the session when a valid token is present and
// passes anonymous requests through unchanged.
func OptionalAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := httputil.AccessToken(r); token != "" {
				if sess, err := authenticator.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(WithSession(r.Context(), sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, sess domain.SessionContext) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// GetSession extracts the session from the request context.
func GetSession(ctx context.Context) (domain.SessionContext, bool) {
	sess, ok := ctx.Value(SessionKey).(domain.SessionContext)
	return sess, ok
}

// GetUserID extracts the user ID from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	sess, ok := GetSession(ctx)
	return sess.AccountID, ok
}
