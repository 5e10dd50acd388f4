// Package account serves signup and handle availability.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-idm-profile/internal/http/features/common"
	"github.com/tendant/simple-idm-profile/internal/http/middleware"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/handle"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

// Creator runs the account creation workflow. *workflow.Controller satisfies it.
type Creator interface {
	Create(ctx context.Context, in workflow.CreateInput) (*workflow.CreateResult, error)
}

// Handler handles account endpoints.
type Handler struct {
	logger         *slog.Logger
	creator        Creator
	directory      handle.Directory
	tokens         common.Tokens
	maxAvatarBytes int64
}

// NewHandler creates a new account handler.
func NewHandler(logger *slog.Logger, creator Creator, directory handle.Directory, tokens common.Tokens, maxAvatarBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		creator:        creator,
		directory:      directory,
		tokens:         tokens,
		maxAvatarBytes: maxAvatarBytes,
	}
}

// CreateRequest represents a signup submission.
type CreateRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Confirmation string `json:"password_confirmation"`
	Handle       string `json:"handle"`
}

// CreateResponse describes a created account.
type CreateResponse struct {
	Account    *domain.Account       `json:"account"`
	Tokens     *common.TokenResponse `json:"tokens,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Message    string                `json:"message,omitempty"`
	RetryLogin bool                  `json:"retry_login,omitempty"`
}

// AvailabilityResponse reports whether a handle can be claimed.
type AvailabilityResponse struct {
	Handle    string       `json:"handle"`
	State     handle.State `json:"state"`
	Available bool         `json:"available"`
}

// Create registers an account.
// POST /v1/accounts
//
// Accepts JSON, or multipart/form-data with the same fields plus an optional
// "avatar" image. The password and confirmation are checked first; handle
// availability is then resolved here rather than trusted from the client.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, avatar, err := h.decodeCreate(r)
	if err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			common.WriteError(w, h.logger, err)
			return
		}
		httputil.BadBody(w, err)
		return
	}

	if req.Email == "" {
		httputil.FieldError(w, http.StatusBadRequest, "email", workflow.MsgEmailRequired)
		return
	}

	in := workflow.CreateInput{
		Email:        req.Email,
		Password:     req.Password,
		Confirmation: req.Confirmation,
		Handle:       req.Handle,
		Avatar:       avatar,
	}
	if err := workflow.ValidateLocal(in); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	ctx := auth.WithSessionOpts(r.Context(), auth.OptsFromRequest(r))

	in.HandleState, err = handle.Resolve(ctx, h.directory, req.Handle, handle.Editing{})
	if err != nil {
		h.logger.Warn("handle availability check failed", "error", err)
	}

	res, err := h.creator.Create(ctx, in)

	var partial *domain.PartialSuccess
	switch {
	case errors.As(err, &partial) && res != nil:
		httputil.JSON(w, http.StatusAccepted, CreateResponse{
			Account:    res.Account,
			Warnings:   res.Warnings,
			Message:    partial.Message,
			RetryLogin: partial.RetryLogin,
		})
	case err != nil:
		common.WriteError(w, h.logger, err)
	default:
		httputil.JSON(w, http.StatusCreated, CreateResponse{
			Account:  res.Account,
			Tokens:   h.tokens.Deliver(w, r, res.Tokens),
			Warnings: res.Warnings,
		})
	}
}

func (h *Handler) decodeCreate(r *http.Request) (CreateRequest, *workflow.Avatar, error) {
	var req CreateRequest
	if !common.IsMultipart(r) {
		err := httputil.DecodeJSON(r, &req)
		return req, nil, err
	}

	if err := r.ParseMultipartForm(h.maxAvatarBytes); err != nil {
		return req, nil, err
	}
	req = CreateRequest{
		Email:        r.FormValue("email"),
		Password:     r.FormValue("password"),
		Confirmation: r.FormValue("password_confirmation"),
		Handle:       r.FormValue("handle"),
	}
	avatar, err := common.ReadAvatar(r, h.maxAvatarBytes)
	return req, avatar, err
}

// Availability checks a handle.
// GET /v1/handles/{handle}/availability
//
// Signed-in callers are treated as editing their own handle, so it reports
// available for them.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	candidate := chi.URLParam(r, "handle")

	var editing handle.Editing
	if id, ok := middleware.GetUserID(r.Context()); ok {
		editing.AccountID = id
	}

	state, err := handle.Resolve(r.Context(), h.directory, candidate, editing)
	if err != nil {
		h.logger.Warn("handle availability check failed", "error", err)
	}

	httputil.JSON(w, http.StatusOK, AvailabilityResponse{
		Handle:    handle.Normalize(candidate),
		State:     state,
		Available: state.Submittable(),
	})
}
