package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdentityRecord is the identity platform's authentication entry.
type IdentityRecord struct {
	ID                  uuid.UUID
	Email               string
	DisplayName         string
	PhotoURL            string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked returns true if the record is currently locked out of sign-in.
func (r *IdentityRecord) IsLocked() bool {
	if r.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*r.LockedUntil)
}

// UserPassword stores password credentials separately from the identity record.
type UserPassword struct {
	UserID            uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}

// Profile is the application's own document describing an account.
// Exactly one exists per account ID. PhotoURL holds the avatar's content
// store key; it is resolved to a fetchable URL when the account is read.
type Profile struct {
	ID        uuid.UUID `json:"-"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	PhotoURL  string    `json:"photoURL"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileUpdate is a partial write merged into an existing profile.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Username *string
	PhotoURL *string
}

// Account is the combined view of an identity record and its profile.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Handle    string    `json:"handle"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAccount assembles an Account. The profile wins for handle and avatar;
// the identity record fills in when no profile document exists.
func NewAccount(rec *IdentityRecord, p *Profile) *Account {
	a := &Account{
		ID:        rec.ID,
		Email:     rec.Email,
		Handle:    rec.DisplayName,
		AvatarURL: rec.PhotoURL,
		CreatedAt: rec.CreatedAt,
	}
	if p != nil {
		a.Handle = p.Username
		a.AvatarURL = p.PhotoURL
		a.CreatedAt = p.CreatedAt
	}
	return a
}

// SessionContext identifies the authenticated caller of a workflow.
type SessionContext struct {
	AccountID uuid.UUID
	SessionID string
}
