package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-profile/internal/http/features/common"
	"github.com/tendant/simple-idm-profile/internal/http/middleware"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/handle"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

// Profiles reads and updates the caller's account. *workflow.Controller
// satisfies it.
type Profiles interface {
	Me(ctx context.Context, sess domain.SessionContext) (*domain.Account, error)
	UpdateHandle(ctx context.Context, sess domain.SessionContext, newHandle string, state handle.State) (*domain.Account, error)
	UpdateAvatar(ctx context.Context, sess domain.SessionContext, avatar *workflow.Avatar) (*domain.Account, error)
}

// Handler handles user profile endpoints.
type Handler struct {
	logger         *slog.Logger
	profiles       Profiles
	directory      handle.Directory
	maxAvatarBytes int64
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, profiles Profiles, directory handle.Directory, maxAvatarBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		profiles:       profiles,
		directory:      directory,
		maxAvatarBytes: maxAvatarBytes,
	}
}

// UpdateHandleRequest represents a handle change.
type UpdateHandleRequest struct {
	Handle string `json:"handle"`
}

// GetMe returns the current user's account.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.profiles.Me(r.Context(), sess)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// UpdateHandle changes the current user's handle.
// PUT /v1/me/handle
func (h *Handler) UpdateHandle(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateHandleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	state, err := handle.Resolve(r.Context(), h.directory, req.Handle, handle.Editing{AccountID: sess.AccountID})
	if err != nil {
		h.logger.Warn("handle availability check failed", "error", err, "user_id", sess.AccountID)
	}

	account, err := h.profiles.UpdateHandle(r.Context(), sess, req.Handle, state)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// UpdateAvatar replaces the current user's avatar.
// PUT /v1/me/avatar (multipart/form-data, field "avatar")
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !common.IsMultipart(r) {
		httputil.Error(w, http.StatusUnsupportedMediaType, "expected multipart/form-data")
		return
	}
	if err := r.ParseMultipartForm(h.maxAvatarBytes); err != nil {
		httputil.BadBody(w, err)
		return
	}
	avatar, err := common.ReadAvatar(r, h.maxAvatarBytes)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	account, err := h.profiles.UpdateAvatar(r.Context(), sess, avatar)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}
