// Package platform declares the capabilities the identity workflow consumes
// from its backing services: the identity platform, the content store for
// avatars, the profile document store, and the session exchange.
//
// Concrete implementations live in pkg/auth (identity, sessions),
// pkg/storage (content) and pkg/repository (profiles).
package platform

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// IdentityPlatform creates and verifies credentials.
type IdentityPlatform interface {
	// CreateCredential returns domain.ErrEmailInUse when the email is registered.
	CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error)
	// SignIn returns domain.ErrInvalidCredentials on a bad email/password pair.
	SignIn(ctx context.Context, email, password string) (*domain.IdentityRecord, error)
	SendPasswordReset(ctx context.Context, email string) error
	// UpdateDisplayNameAndAvatar stores avatar as given: a content store key,
	// or empty.
	UpdateDisplayNameAndAvatar(ctx context.Context, id uuid.UUID, name, avatar string) error
	GetRecord(ctx context.Context, id uuid.UUID) (*domain.IdentityRecord, error)
}

// StorageRef points at an uploaded object.
type StorageRef struct {
	Bucket string
	Key    string
}

// ContentStore holds uploaded files.
type ContentStore interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (StorageRef, error)
	// ResolveDownloadURL may return a URL that expires. An empty Bucket means
	// the store's default bucket.
	ResolveDownloadURL(ctx context.Context, ref StorageRef) (string, error)
}

// ProfileStore is the document store holding one profile per account.
type ProfileStore interface {
	// ReadProfile returns domain.ErrProfileNotFound when no document exists.
	ReadProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	WriteProfile(ctx context.Context, p *domain.Profile) error
	UpdateProfile(ctx context.Context, id uuid.UUID, u domain.ProfileUpdate) error
	QueryByUsername(ctx context.Context, username string) ([]*domain.Profile, error)
}

// SessionExchanger turns credentials into an application session.
type SessionExchanger interface {
	EstablishSession(ctx context.Context, email, password string) (*domain.TokenPair, error)
}
