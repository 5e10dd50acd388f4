// Package common holds response helpers shared by the feature handlers.
package common

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// User-facing messages for errors that do not carry their own.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgAccountLocked      = "Account temporarily locked due to too many failed login attempts. Please try again in 15 minutes."
	MsgSessionAbsent      = "Signed in, but the session could not be started. Please try logging in again."
	MsgInvalidResetToken  = "This reset link is invalid or has expired"
	MsgTryAgain           = "Something went wrong, please try again"
)

// TokenResponse carries session tokens. Web clients get cookies and only
// the token type and lifetime in the body.
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Tokens delivers session tokens to clients.
type Tokens struct {
	Cookies    httputil.CookieConfig
	RefreshTTL time.Duration
}

// Deliver sets auth cookies for web clients and returns the body fragment
// describing the tokens. Mobile clients (X-Client-Type: mobile) get the
// tokens in the body instead.
func (t Tokens) Deliver(w http.ResponseWriter, r *http.Request, tokens *domain.TokenPair) *TokenResponse {
	if tokens == nil {
		return nil
	}
	if httputil.IsMobileClient(r) {
		return &TokenResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			TokenType:    tokens.TokenType,
			ExpiresIn:    tokens.ExpiresIn,
		}
	}
	httputil.SetAuthCookies(w, tokens, t.RefreshTTL, t.Cookies)
	return &TokenResponse{
		TokenType: tokens.TokenType,
		ExpiresIn: tokens.ExpiresIn,
	}
}

// Clear removes auth cookies for web clients.
func (t Tokens) Clear(w http.ResponseWriter, r *http.Request) {
	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, t.Cookies)
	}
}

// PartialResponse reports an account that was created but not completed.
type PartialResponse struct {
	Error      string `json:"error"`
	AccountID  string `json:"account_id"`
	RetryLogin bool   `json:"retry_login"`
}

// WriteError maps a workflow or identity error to a response.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.RemoteConflict
		transient  *domain.RemoteTransient
		partial    *domain.PartialSuccess
	)

	switch {
	case errors.As(err, &validation):
		httputil.FieldError(w, http.StatusBadRequest, validation.Field, validation.Message)
	case errors.As(err, &conflict):
		httputil.Error(w, http.StatusConflict, conflict.Message)
	case errors.As(err, &partial):
		httputil.JSON(w, http.StatusAccepted, PartialResponse{
			Error:      partial.Message,
			AccountID:  partial.AccountID.String(),
			RetryLogin: partial.RetryLogin,
		})
	case errors.As(err, &transient):
		logger.Error("workflow step failed", "step", transient.Step, "error", transient.Err)
		httputil.Error(w, http.StatusServiceUnavailable, MsgTryAgain)
	case errors.Is(err, domain.ErrSessionAbsent):
		httputil.Error(w, http.StatusUnauthorized, MsgSessionAbsent)
	case errors.Is(err, domain.ErrInvalidCredentials):
		httputil.Error(w, http.StatusUnauthorized, MsgInvalidCredentials)
	case errors.Is(err, domain.ErrAccountLocked):
		httputil.Error(w, http.StatusLocked, MsgAccountLocked)
	case errors.Is(err, domain.ErrResetTokenNotFound), errors.Is(err, domain.ErrResetTokenInvalid):
		httputil.Error(w, http.StatusBadRequest, MsgInvalidResetToken)
	case errors.Is(err, domain.ErrWeakPassword):
		httputil.FieldError(w, http.StatusBadRequest, "password", err.Error())
	case errors.Is(err, domain.ErrInvalidEmail):
		httputil.FieldError(w, http.StatusBadRequest, "email", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		httputil.Error(w, http.StatusNotFound, "account not found")
	case errors.Is(err, domain.ErrResetUnavailable):
		logger.Error("password reset unavailable", "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, MsgTryAgain)
	default:
		logger.Error("request failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, MsgTryAgain)
	}
}
