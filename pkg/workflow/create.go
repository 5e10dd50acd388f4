package workflow

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/handle"
)

// CreateInput is a signup submission.
type CreateInput struct {
	Email        string
	Password     string
	Confirmation string
	Handle       string
	// HandleState is the negotiated availability of Handle.
	HandleState handle.State
	Avatar      *Avatar
}

// CreateResult describes a created account.
type CreateResult struct {
	Account  *domain.Account
	Tokens   *domain.TokenPair
	Warnings []string
}

// Create registers a new account.
//
// Preconditions are checked before any remote call and the first failure is
// returned as *domain.ValidationError. Then, in order: the credential is
// created, the avatar is uploaded, the profile document is written, the
// display name and avatar are synced onto the identity record and a session
// is established. A failed avatar upload only adds a warning. Failures after
// the credential exists return both a result and a *domain.PartialSuccess.
func (c *Controller) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	id, err := c.identity.CreateCredential(ctx, in.Email, in.Password)
	if err != nil {
		return nil, createCredentialError(err)
	}
	log := c.logger.With("account_id", id)

	res := &CreateResult{
		Account: &domain.Account{
			ID:        id,
			Email:     strings.ToLower(strings.TrimSpace(in.Email)),
			Handle:    handle.Normalize(in.Handle),
			CreatedAt: c.now(),
		},
	}

	var avatarKey string
	if !in.Avatar.Empty() {
		key, err := c.uploadAvatar(ctx, id, in.Avatar)
		if err != nil {
			log.Warn("avatar upload failed", "error", err)
			res.Warnings = append(res.Warnings, MsgAvatarWarning)
		} else {
			avatarKey = key
			res.Account.AvatarURL = c.avatarURL(ctx, key)
		}
	}

	profile := &domain.Profile{
		ID:        id,
		Username:  res.Account.Handle,
		Email:     res.Account.Email,
		PhotoURL:  avatarKey,
		CreatedAt: res.Account.CreatedAt,
	}
	if err := c.profiles.WriteProfile(ctx, profile); err != nil {
		log.Error("profile write failed", "error", err)
		return res, &domain.PartialSuccess{AccountID: id, Step: "write profile", Message: MsgProfileIncomplete, Err: err}
	}

	if err := c.identity.UpdateDisplayNameAndAvatar(ctx, id, in.Handle, avatarKey); err != nil {
		log.Error("display name sync failed", "error", err)
		return res, &domain.PartialSuccess{AccountID: id, Step: "sync display name", Message: MsgProfileIncomplete, Err: err}
	}

	tokens, err := c.sessions.EstablishSession(ctx, in.Email, in.Password)
	if err != nil {
		log.Error("session establishment failed", "error", err)
		return res, &domain.PartialSuccess{AccountID: id, Step: "establish session", Message: MsgSessionNotAttached, RetryLogin: true, Err: err}
	}
	res.Tokens = tokens

	log.Info("account created", "handle", res.Account.Handle, "avatar", avatarKey != "")
	return res, nil
}

// ValidateLocal checks the parts of a signup that need no remote lookup: the
// password facets and the confirmation. Callers run it before negotiating
// the handle.
func ValidateLocal(in CreateInput) error {
	if facets := auth.CheckPassword(in.Password); !facets.Valid() {
		return &domain.ValidationError{Field: "password", Message: facets.Requirements()}
	}
	if !auth.PasswordsMatch(in.Password, in.Confirmation) {
		return &domain.ValidationError{Field: "confirmation", Message: MsgPasswordMismatch}
	}
	return nil
}

func validateCreate(in CreateInput) error {
	if err := ValidateLocal(in); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Handle) < handle.MinLength {
		return &domain.ValidationError{Field: "handle", Message: MsgHandleTooShort}
	}
	return handleStateError(in.HandleState)
}

func handleStateError(state handle.State) error {
	switch state {
	case handle.Available:
		return nil
	case handle.Error:
		return &domain.ValidationError{Field: "handle", Message: MsgHandleCheckFailed}
	default:
		return &domain.ValidationError{Field: "handle", Message: MsgHandleUnavailable}
	}
}

func createCredentialError(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmailInUse):
		return &domain.RemoteConflict{Message: MsgEmailInUse, Err: err}
	case errors.Is(err, domain.ErrInvalidEmail):
		return &domain.ValidationError{Field: "email", Message: strings.TrimPrefix(err.Error(), domain.ErrInvalidEmail.Error()+": ")}
	case errors.Is(err, domain.ErrWeakPassword):
		return &domain.ValidationError{Field: "password", Message: err.Error()}
	default:
		return &domain.RemoteTransient{Step: "create account", Err: err}
	}
}
