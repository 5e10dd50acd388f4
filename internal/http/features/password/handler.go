package password

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/internal/http/features/common"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

// ResetRequester starts a password reset. *workflow.Controller satisfies it.
type ResetRequester interface {
	RequestPasswordReset(ctx context.Context, email string) error
}

// Resetter completes a password reset. *auth.IdentityService satisfies it.
type Resetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) (uuid.UUID, error)
}

// SessionRevoker revokes every session of an account.
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error
}

// MsgResetRequested is returned whether or not the email is registered.
const MsgResetRequested = "If an account exists with that email, a password reset link has been sent"

// Handler handles password reset endpoints.
type Handler struct {
	logger   *slog.Logger
	requests ResetRequester
	resetter Resetter
	sessions SessionRevoker
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, requests ResetRequester, resetter Resetter, sessions SessionRevoker) *Handler {
	return &Handler{
		logger:   logger,
		requests: requests,
		resetter: resetter,
		sessions: sessions,
	}
}

// PasswordResetRequestRequest represents a password reset request.
type PasswordResetRequestRequest struct {
	Email string `json:"email"`
}

// PasswordResetRequest represents a password reset.
type PasswordResetRequest struct {
	Token        string `json:"token"`
	NewPassword  string `json:"new_password"`
	Confirmation string `json:"new_password_confirmation,omitempty"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// RequestPasswordReset handles password reset requests.
// POST /v1/auth/password/reset-request
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.requests.RequestPasswordReset(r.Context(), req.Email); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: MsgResetRequested})
}

// ResetPassword handles password resets.
// POST /v1/auth/password/reset
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if req.Token == "" {
		httputil.FieldError(w, http.StatusBadRequest, "token", "token is required")
		return
	}
	if facets := auth.CheckPassword(req.NewPassword); !facets.Valid() {
		httputil.FieldError(w, http.StatusBadRequest, "new_password", facets.Requirements())
		return
	}
	if req.Confirmation != "" && !auth.PasswordsMatch(req.NewPassword, req.Confirmation) {
		httputil.FieldError(w, http.StatusBadRequest, "new_password_confirmation", workflow.MsgPasswordMismatch)
		return
	}

	userID, err := h.resetter.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	// Revoke all existing sessions; the password change already succeeded
	if err := h.sessions.RevokeAllSessions(r.Context(), userID); err != nil {
		h.logger.Error("failed to revoke sessions", "error", err, "user_id", userID)
	}

	h.logger.Info("password reset successful", "user_id", userID)
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}
