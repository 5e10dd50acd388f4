// Package workflow orchestrates account creation and profile updates across
// the identity platform, the content store and the profile document store.
//
// Steps run sequentially on the caller's goroutine. There is no transaction
// spanning the stores: a failure after the identity record exists leaves a
// partially created account, reported as *domain.PartialSuccess. Repair
// reconciles such accounts and runs after every login.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/platform"
)

// AvatarKeyPrefix is the content store prefix for profile images.
const AvatarKeyPrefix = "profileImages/"

// AvatarKey returns the content store key of an avatar uploaded at the given
// time. Every upload gets its own key.
func AvatarKey(id uuid.UUID, uploaded time.Time) string {
	return AvatarKeyPrefix + id.String() + "/" + strconv.FormatInt(uploaded.UnixNano(), 36)
}

// User-facing messages.
const (
	MsgEmailInUse         = "Email is already registered"
	MsgPasswordMismatch   = "Passwords do not match"
	MsgHandleTooShort     = "Username must be at least 3 characters"
	MsgHandleUnavailable  = "Username is not available"
	MsgHandleCheckFailed  = "Could not check username availability, please try again"
	MsgHandleTaken        = "Username is already taken"
	MsgAvatarMissing      = "Please choose an image to upload"
	MsgAvatarWarning      = "Your account was created, but the profile picture could not be uploaded. You can add it from your profile."
	MsgProfileIncomplete  = "Your account was created, but profile setup did not finish. Please log in to complete it."
	MsgSessionNotAttached = "Your account was created, but we could not sign you in. Please log in."
	MsgEmailRequired      = "Email is required"
)

// Avatar is an uploaded image.
type Avatar struct {
	Data        []byte
	ContentType string
}

// Empty reports whether no file was supplied.
func (a *Avatar) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller runs the identity workflows.
type Controller struct {
	identity platform.IdentityPlatform
	content  platform.ContentStore
	profiles platform.ProfileStore
	sessions platform.SessionExchanger
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a workflow controller.
func New(identity platform.IdentityPlatform, content platform.ContentStore, profiles platform.ProfileStore, sessions platform.SessionExchanger, opts ...Option) *Controller {
	c := &Controller{
		identity: identity,
		content:  content,
		profiles: profiles,
		sessions: sessions,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profiles exposes the profile directory for handle lookups.
func (c *Controller) Profiles() platform.ProfileStore {
	return c.profiles
}

// Me returns the caller's account. A missing profile document falls back to
// the identity record.
func (c *Controller) Me(ctx context.Context, sess domain.SessionContext) (*domain.Account, error) {
	rec, err := c.identity.GetRecord(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	p, err := c.readProfile(ctx, sess.AccountID)
	if err != nil {
		return nil, &domain.RemoteTransient{Step: "read profile", Err: err}
	}
	return c.account(ctx, rec, p), nil
}

// account assembles the caller's view with a freshly resolved avatar URL.
func (c *Controller) account(ctx context.Context, rec *domain.IdentityRecord, p *domain.Profile) *domain.Account {
	a := domain.NewAccount(rec, p)
	a.AvatarURL = c.avatarURL(ctx, a.AvatarURL)
	return a
}

// RequestPasswordReset asks the identity platform to email a reset link.
// Delivery failures are logged and not reported, so callers cannot tell
// registered addresses from unknown ones.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return &domain.ValidationError{Field: "email", Message: MsgEmailRequired}
	}
	if err := c.identity.SendPasswordReset(ctx, email); err != nil {
		c.logger.Error("password reset request failed", "error", err)
	}
	return nil
}

// readProfile returns nil without error when no document exists.
func (c *Controller) readProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	p, err := c.profiles.ReadProfile(ctx, id)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, nil
	}
	return p, err
}

// uploadAvatar stores the image and returns its object key.
func (c *Controller) uploadAvatar(ctx context.Context, id uuid.UUID, avatar *Avatar) (string, error) {
	ref, err := c.content.UploadFile(ctx, AvatarKey(id, c.now()), avatar.Data, avatar.ContentType)
	if err != nil {
		return "", err
	}
	return ref.Key, nil
}

// avatarURL resolves a stored avatar reference into a URL the client can
// fetch. Object keys are resolved on every call; absolute URLs that carry no
// signature are returned as is. A resolution failure yields no avatar.
func (c *Controller) avatarURL(ctx context.Context, stored string) string {
	ref := avatarRef(stored)
	if ref == "" || isAbsoluteURL(ref) {
		return ref
	}
	u, err := c.content.ResolveDownloadURL(ctx, platform.StorageRef{Key: ref})
	if err != nil {
		c.logger.Warn("avatar url resolution failed", "key", ref, "error", err)
		return ""
	}
	return u
}

// avatarRef normalizes a stored avatar value. A presigned URL for an avatar
// object is reduced to its key since the signature expires; anything else
// is returned unchanged.
func avatarRef(stored string) string {
	if !isAbsoluteURL(stored) {
		return stored
	}
	u, err := url.Parse(stored)
	if err != nil || u.Query().Get("X-Amz-Signature") == "" {
		return stored
	}
	if i := strings.Index(u.Path, "/"+AvatarKeyPrefix); i >= 0 {
		return u.Path[i+1:]
	}
	return stored
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
