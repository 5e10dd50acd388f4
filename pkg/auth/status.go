package auth

import (
	"context"
	"strings"

	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// SessionStatus is the observable state of a caller's session.
type SessionStatus int

const (
	// StatusLoading is the state before the session has been checked.
	StatusLoading SessionStatus = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s SessionStatus) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "loading"
	}
}

// Page paths used by the redirect rules.
const (
	LoginPath     = "/login"
	SignupPath    = "/signup"
	DashboardPath = "/dashboard"
)

// TokenAuthenticator resolves an access token to a live session.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (domain.SessionContext, error)
}

// ResolveStatus moves a caller out of loading. Any failure to authenticate,
// including an expired token, resolves to unauthenticated.
func ResolveStatus(ctx context.Context, auth TokenAuthenticator, token string) (SessionStatus, domain.SessionContext) {
	if token == "" {
		return StatusUnauthenticated, domain.SessionContext{}
	}
	sc, err := auth.Authenticate(ctx, token)
	if err != nil {
		return StatusUnauthenticated, domain.SessionContext{}
	}
	return StatusAuthenticated, sc
}

// IsPublicPath reports whether a page is reachable without a session.
func IsPublicPath(path string) bool {
	switch strings.TrimSuffix(path, "/") {
	case LoginPath, SignupPath, "/forgot-password", "/health", "":
		return true
	}
	return false
}

// RedirectFor returns the path a caller with the given status should be
// sent to when requesting path, or "" to stay. Nothing redirects while
// loading.
func RedirectFor(status SessionStatus, path string) string {
	path = strings.TrimSuffix(path, "/")
	switch status {
	case StatusUnauthenticated:
		if !IsPublicPath(path) {
			return LoginPath
		}
	case StatusAuthenticated:
		if path == LoginPath || path == SignupPath {
			return DashboardPath
		}
	}
	return ""
}
