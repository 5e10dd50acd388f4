package workflow

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/handle"
)

// UpdateHandle changes the caller's handle. state is the negotiated
// availability of newHandle; it is ignored when the handle is unchanged.
// The profile username and the identity record display name are written
// together: if the second write fails the first is reverted.
func (c *Controller) UpdateHandle(ctx context.Context, sess domain.SessionContext, newHandle string, state handle.State) (*domain.Account, error) {
	if utf8.RuneCountInString(newHandle) < handle.MinLength {
		return nil, &domain.ValidationError{Field: "handle", Message: MsgHandleTooShort}
	}

	rec, current, err := c.load(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(newHandle, current.Username) {
		if err := handleStateError(state); err != nil {
			return nil, err
		}
	}

	previous := current.Username
	username := handle.Normalize(newHandle)
	if err := c.profiles.UpdateProfile(ctx, sess.AccountID, domain.ProfileUpdate{Username: &username}); err != nil {
		if errors.Is(err, domain.ErrHandleTaken) {
			return nil, &domain.RemoteConflict{Message: MsgHandleTaken, Err: err}
		}
		return nil, &domain.RemoteTransient{Step: "update profile", Err: err}
	}

	if err := c.identity.UpdateDisplayNameAndAvatar(ctx, sess.AccountID, newHandle, rec.PhotoURL); err != nil {
		if rerr := c.profiles.UpdateProfile(ctx, sess.AccountID, domain.ProfileUpdate{Username: &previous}); rerr != nil {
			c.logger.Error("handle revert failed", "account_id", sess.AccountID, "error", rerr)
		}
		return nil, &domain.RemoteTransient{Step: "update display name", Err: err}
	}

	c.logger.Info("handle updated", "account_id", sess.AccountID, "handle", username)
	rec.DisplayName = newHandle
	current.Username = username
	return c.account(ctx, rec, current), nil
}

// UpdateAvatar uploads a new avatar and points both stores at it. If the
// identity record write fails the profile photo is reverted.
func (c *Controller) UpdateAvatar(ctx context.Context, sess domain.SessionContext, avatar *Avatar) (*domain.Account, error) {
	if avatar.Empty() {
		return nil, &domain.ValidationError{Field: "avatar", Message: MsgAvatarMissing}
	}

	rec, current, err := c.load(ctx, sess)
	if err != nil {
		return nil, err
	}

	key, err := c.uploadAvatar(ctx, sess.AccountID, avatar)
	if err != nil {
		return nil, &domain.RemoteTransient{Step: "upload avatar", Err: err}
	}

	previous := current.PhotoURL
	if err := c.profiles.UpdateProfile(ctx, sess.AccountID, domain.ProfileUpdate{PhotoURL: &key}); err != nil {
		return nil, &domain.RemoteTransient{Step: "update profile", Err: err}
	}

	if err := c.identity.UpdateDisplayNameAndAvatar(ctx, sess.AccountID, displayName(rec, current), key); err != nil {
		if rerr := c.profiles.UpdateProfile(ctx, sess.AccountID, domain.ProfileUpdate{PhotoURL: &previous}); rerr != nil {
			c.logger.Error("avatar revert failed", "account_id", sess.AccountID, "error", rerr)
		}
		return nil, &domain.RemoteTransient{Step: "update avatar", Err: err}
	}

	c.logger.Info("avatar updated", "account_id", sess.AccountID)
	rec.PhotoURL = key
	current.PhotoURL = key
	return c.account(ctx, rec, current), nil
}

// load reads the caller's identity record and profile, repairing a missing
// profile first.
func (c *Controller) load(ctx context.Context, sess domain.SessionContext) (*domain.IdentityRecord, *domain.Profile, error) {
	rec, err := c.identity.GetRecord(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, err
		}
		return nil, nil, &domain.RemoteTransient{Step: "read account", Err: err}
	}

	p, err := c.readProfile(ctx, sess.AccountID)
	if err != nil {
		return nil, nil, &domain.RemoteTransient{Step: "read profile", Err: err}
	}
	if p == nil {
		if _, err := c.Repair(ctx, sess.AccountID); err != nil {
			return nil, nil, err
		}
		if p, err = c.profiles.ReadProfile(ctx, sess.AccountID); err != nil {
			return nil, nil, &domain.RemoteTransient{Step: "read profile", Err: err}
		}
	}
	return rec, p, nil
}

// displayName keeps the record's casing when it still names the profile's
// username.
func displayName(rec *domain.IdentityRecord, p *domain.Profile) string {
	if strings.EqualFold(rec.DisplayName, p.Username) {
		return rec.DisplayName
	}
	return p.Username
}
