package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/handle"
)

// RepairReport lists what Repair changed.
type RepairReport struct {
	CreatedProfile bool
	RekeyedAvatar  bool
	SyncedRecord   bool
}

// Changed reports whether anything was written.
func (r RepairReport) Changed() bool {
	return r.CreatedProfile || r.RekeyedAvatar || r.SyncedRecord
}

// Repair reconciles an account's identity record and profile document. It is
// idempotent. A missing profile is created from the identity record; when
// the record's display name or avatar disagree with the profile, the record
// is updated to match the profile. A presigned avatar URL stored on the
// profile is replaced by its object key.
func (c *Controller) Repair(ctx context.Context, id uuid.UUID) (RepairReport, error) {
	var report RepairReport

	rec, err := c.identity.GetRecord(ctx, id)
	if err != nil {
		return report, &domain.RemoteTransient{Step: "read account", Err: err}
	}

	p, err := c.readProfile(ctx, id)
	if err != nil {
		return report, &domain.RemoteTransient{Step: "read profile", Err: err}
	}

	if p == nil {
		username, err := c.fallbackHandle(ctx, rec)
		if err != nil {
			return report, &domain.RemoteTransient{Step: "choose handle", Err: err}
		}
		p = &domain.Profile{
			ID:        id,
			Username:  username,
			Email:     strings.ToLower(rec.Email),
			PhotoURL:  avatarRef(rec.PhotoURL),
			CreatedAt: rec.CreatedAt,
		}
		if err := c.profiles.WriteProfile(ctx, p); err != nil {
			return report, &domain.RemoteTransient{Step: "write profile", Err: err}
		}
		report.CreatedProfile = true
	} else if ref := avatarRef(p.PhotoURL); ref != p.PhotoURL {
		if err := c.profiles.UpdateProfile(ctx, id, domain.ProfileUpdate{PhotoURL: &ref}); err != nil {
			return report, &domain.RemoteTransient{Step: "update profile", Err: err}
		}
		p.PhotoURL = ref
		report.RekeyedAvatar = true
	}

	name := displayName(rec, p)
	if rec.DisplayName != name || rec.PhotoURL != p.PhotoURL {
		if err := c.identity.UpdateDisplayNameAndAvatar(ctx, id, name, p.PhotoURL); err != nil {
			return report, &domain.RemoteTransient{Step: "sync display name", Err: err}
		}
		report.SyncedRecord = true
	}

	if report.Changed() {
		c.logger.Info("account repaired", "account_id", id,
			"created_profile", report.CreatedProfile, "rekeyed_avatar", report.RekeyedAvatar,
			"synced_record", report.SyncedRecord)
	}
	return report, nil
}

// fallbackHandle picks a handle for an account without a profile: the
// record's display name when it is well formed and free, otherwise one
// derived from the account ID.
func (c *Controller) fallbackHandle(ctx context.Context, rec *domain.IdentityRecord) (string, error) {
	if handle.WellFormed(rec.DisplayName) {
		state, err := handle.Resolve(ctx, c.profiles, rec.DisplayName, handle.Editing{AccountID: rec.ID})
		if err != nil {
			return "", err
		}
		if state == handle.Available {
			return handle.Normalize(rec.DisplayName), nil
		}
	}
	return "user-" + strings.ReplaceAll(rec.ID.String(), "-", "")[:12], nil
}

// RepairAfterSignIn runs Repair and logs instead of returning failures.
// It is registered as a session bridge hook.
func (c *Controller) RepairAfterSignIn(ctx context.Context, id uuid.UUID) {
	if _, err := c.Repair(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("account repair failed", "account_id", id, "error", err)
	}
}
