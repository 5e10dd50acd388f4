package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Identity platform errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
)

// Profile and handle errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrHandleTaken     = errors.New("handle already taken")
)

// Session errors
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrSessionFingerprint = errors.New("session fingerprint mismatch - possible token theft")
	ErrSessionAbsent      = errors.New("signed in but no application session was established")
	ErrInvalidToken       = errors.New("invalid token")
)

// Password reset errors
var (
	ErrResetTokenNotFound = errors.New("reset token not found or expired")
	ErrResetTokenInvalid  = errors.New("invalid reset token")
	ErrResetUnavailable   = errors.New("reset token store unavailable")
)

// Validation errors
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password does not meet requirements")
	ErrMissingFile  = errors.New("no file supplied")
)

// ValidationError is a client-detected failure found before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RemoteConflict is a conflict reported by a backing platform, such as a
// registered email. The message is shown to the user verbatim.
type RemoteConflict struct {
	Message string
	Err     error
}

func (e *RemoteConflict) Error() string {
	return e.Message
}

func (e *RemoteConflict) Unwrap() error {
	return e.Err
}

// RemoteTransient is a network or service failure during a workflow step.
// Steps already committed are not rolled back.
type RemoteTransient struct {
	Step string
	Err  error
}

func (e *RemoteTransient) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *RemoteTransient) Unwrap() error {
	return e.Err
}

// PartialSuccess reports an account that exists but whose remaining
// workflow steps did not all complete.
type PartialSuccess struct {
	AccountID  uuid.UUID
	Step       string
	Message    string
	RetryLogin bool
	Err        error
}

func (e *PartialSuccess) Error() string {
	return e.Message
}

func (e *PartialSuccess) Unwrap() error {
	return e.Err
}
