package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// Lockout policy for repeated sign-in failures.
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
)

const resetTokenLen = 32

// IdentityRecords is the persistence the identity service needs.
// *repository.UsersRepository satisfies it.
type IdentityRecords interface {
	CreateWithPassword(ctx context.Context, rec *domain.IdentityRecord, cred *domain.UserPassword) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IdentityRecord, error)
	GetByEmail(ctx context.Context, email string) (*domain.IdentityRecord, error)
	UpdateDisplayNameAndPhoto(ctx context.Context, id uuid.UUID, name, photoURL string) error
	IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error
	ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error
}

// PasswordCredentials stores password hashes.
// *repository.CredentialsRepository satisfies it.
type PasswordCredentials interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error)
	Update(ctx context.Context, cred *domain.UserPassword) error
}

// ResetMailer delivers password reset links.
type ResetMailer interface {
	SendPasswordResetEmail(to, resetURL string) error
}

// IdentityConfig holds identity service options.
type IdentityConfig struct {
	StrictEmailValidation bool
	BlockDisposableEmail  bool
	// ResetURL is the page that receives ?token=... from reset emails.
	ResetURL      string
	ResetTokenTTL time.Duration
}

// IdentityService is the credential platform: it creates accounts, verifies
// passwords and runs the password reset flow.
type IdentityService struct {
	config IdentityConfig
	users  IdentityRecords
	creds  PasswordCredentials
	resets ResetTokenStore
	mailer ResetMailer
}

// NewIdentityService creates a new identity service. resets and mailer may be
// nil, in which case password reset reports domain.ErrResetUnavailable.
func NewIdentityService(config IdentityConfig, users IdentityRecords, creds PasswordCredentials, resets ResetTokenStore, mailer ResetMailer) *IdentityService {
	if config.ResetTokenTTL == 0 {
		config.ResetTokenTTL = DefaultResetTokenTTL
	}
	return &IdentityService{
		config: config,
		users:  users,
		creds:  creds,
		resets: resets,
		mailer: mailer,
	}
}

// CreateCredential registers an email/password pair and returns the new account ID.
func (s *IdentityService) CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error) {
	policy := EmailPolicy{Strict: s.config.StrictEmailValidation, BlockDisposable: s.config.BlockDisposableEmail}
	if err := policy.Check(email); err != nil {
		return uuid.Nil, err
	}
	email = NormalizeEmail(email)

	if !CheckPassword(password).Valid() {
		return uuid.Nil, domain.ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now()
	rec := &domain.IdentityRecord{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &domain.UserPassword{
		UserID:            rec.ID,
		PasswordHash:      hash,
		PasswordUpdatedAt: now,
	}

	if err := s.users.CreateWithPassword(ctx, rec, cred); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// SignIn verifies an email and password and returns the identity record.
// Accounts lock for LockoutDuration after MaxFailedAttempts failures.
func (s *IdentityService) SignIn(ctx context.Context, email, password string) (*domain.IdentityRecord, error) {
	rec, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if rec.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	cred, err := s.creds.GetByUserID(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		_ = s.users.IncrementFailedLoginAttempts(ctx, rec.ID, LockoutDuration, MaxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	if rec.FailedLoginAttempts > 0 || rec.LockedUntil != nil {
		_ = s.users.ResetFailedLoginAttempts(ctx, rec.ID)
		rec.FailedLoginAttempts = 0
		rec.LockedUntil = nil
	}

	return rec, nil
}

// SendPasswordReset emails a reset link. Unknown emails succeed silently so
// the response never reveals whether an address is registered.
func (s *IdentityService) SendPasswordReset(ctx context.Context, email string) error {
	if s.resets == nil || s.mailer == nil {
		return domain.ErrResetUnavailable
	}

	email = NormalizeEmail(email)
	rec, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := GenerateToken(resetTokenLen)
	if err != nil {
		return err
	}
	if err := s.resets.Save(ctx, HashToken(token), rec.ID, s.config.ResetTokenTTL); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordResetEmail(rec.Email, s.resetLink(token)); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
// The returned ID lets callers revoke the account's sessions.
func (s *IdentityService) ResetPassword(ctx context.Context, token, newPassword string) (uuid.UUID, error) {
	if s.resets == nil {
		return uuid.Nil, domain.ErrResetUnavailable
	}
	if token == "" {
		return uuid.Nil, domain.ErrResetTokenInvalid
	}
	if !CheckPassword(newPassword).Valid() {
		return uuid.Nil, domain.ErrWeakPassword
	}

	userID, err := s.resets.Consume(ctx, HashToken(token))
	if err != nil {
		return uuid.Nil, err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.creds.Update(ctx, &domain.UserPassword{UserID: userID, PasswordHash: hash}); err != nil {
		return uuid.Nil, err
	}

	_ = s.users.ResetFailedLoginAttempts(ctx, userID)
	return userID, nil
}

// UpdateDisplayNameAndAvatar mirrors the handle and avatar onto the identity record.
func (s *IdentityService) UpdateDisplayNameAndAvatar(ctx context.Context, id uuid.UUID, name, avatarURL string) error {
	return s.users.UpdateDisplayNameAndPhoto(ctx, id, SanitizeDisplayName(name), avatarURL)
}

// GetRecord retrieves an identity record by account ID.
func (s *IdentityService) GetRecord(ctx context.Context, id uuid.UUID) (*domain.IdentityRecord, error) {
	return s.users.GetByID(ctx, id)
}

func (s *IdentityService) resetLink(token string) string {
	base := s.config.ResetURL
	if base == "" {
		base = "/forgot-password"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// Encode as: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against an Argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}
