package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/internal/http/features/common"
	"github.com/tendant/simple-idm-profile/internal/http/middleware"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// SessionManager refreshes, revokes and validates sessions.
// *auth.SessionService satisfies it.
type SessionManager interface {
	RefreshSession(ctx context.Context, refreshToken string, opts auth.IssueSessionOpts) (*domain.TokenPair, error)
	RevokeSession(ctx context.Context, refreshToken string) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error
	Authenticate(ctx context.Context, token string) (domain.SessionContext, error)
}

// Establisher exchanges credentials for a session. *auth.Bridge satisfies it.
type Establisher interface {
	EstablishSession(ctx context.Context, email, password string) (*domain.TokenPair, error)
}

// Handler handles session endpoints.
type Handler struct {
	logger         *slog.Logger
	bridge         Establisher
	sessionService SessionManager
	tokens         common.Tokens
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, bridge Establisher, sessionService SessionManager, tokens common.Tokens) *Handler {
	return &Handler{
		logger:         logger,
		bridge:         bridge,
		sessionService: sessionService,
		tokens:         tokens,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token in the body (for mobile clients).
// Refresh and logout share it.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// StatusResponse reports the caller's session status.
type StatusResponse struct {
	Status    string `json:"status"`
	AccountID string `json:"account_id,omitempty"`
}

// Login signs in with email and password.
// POST /v1/auth/login
//
// For web clients: Sets HttpOnly cookies, returns minimal response.
// For mobile clients (X-Client-Type: mobile): Returns tokens in response body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := auth.WithSessionOpts(r.Context(), auth.OptsFromRequest(r))
	tokens, err := h.bridge.EstablishSession(ctx, req.Email, req.Password)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, h.tokens.Deliver(w, r, tokens))
}

// Refresh refreshes an access token.
// POST /v1/auth/refresh
//
// For web clients: Reads refresh token from cookie, sets new cookies.
// For mobile clients: Reads/returns tokens in request/response body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshToken(w, r, true)
	if !ok {
		return
	}

	if refreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.sessionService.RefreshSession(r.Context(), refreshToken, auth.OptsFromRequest(r))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) ||
			errors.Is(err, domain.ErrSessionExpired) ||
			errors.Is(err, domain.ErrSessionRevoked) ||
			errors.Is(err, domain.ErrSessionFingerprint) {
			if errors.Is(err, domain.ErrSessionFingerprint) {
				h.logger.Warn("refresh token used from a different client", "error", err, "ip", auth.ClientIP(r))
			}
			h.tokens.Clear(w, r)
			httputil.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.logger.Error("failed to refresh token", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	httputil.JSON(w, http.StatusOK, h.tokens.Deliver(w, r, tokens))
}

// Logout revokes a session.
// POST /v1/auth/logout
//
// For web clients: Reads refresh token from cookie, clears cookies.
// For mobile clients: Reads token from request body.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.refreshToken(w, r, false)
	if !ok {
		return
	}

	if refreshToken != "" {
		// Errors are ignored so logout cannot be used to probe tokens
		_ = h.sessionService.RevokeSession(r.Context(), refreshToken)
	}

	h.tokens.Clear(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes all sessions for the current user.
// POST /v1/auth/logout/all
// Requires authentication
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.sessionService.RevokeAllSessions(r.Context(), userID); err != nil {
		h.logger.Error("failed to logout all sessions", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to logout all sessions")
		return
	}

	h.tokens.Clear(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Status reports whether the caller holds a live session.
// GET /v1/auth/session
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, sess := auth.ResolveStatus(r.Context(), h.sessionService, httputil.AccessToken(r))
	resp := StatusResponse{Status: status.String()}
	if status == auth.StatusAuthenticated {
		resp.AccountID = sess.AccountID.String()
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// refreshToken reads the refresh token from the body for mobile clients and
// from the cookie otherwise. It writes the error response itself when ok is
// false. A missing cookie is an error only when required.
func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request, required bool) (token string, ok bool) {
	if httputil.IsMobileClient(r) {
		var req RefreshRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadBody(w, err)
			return "", false
		}
		return req.RefreshToken, true
	}

	token, found := httputil.GetRefreshTokenFromCookie(r)
	if !found && required {
		httputil.Error(w, http.StatusUnauthorized, "refresh token not found")
		return "", false
	}
	return token, true
}
