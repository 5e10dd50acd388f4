package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// ProfilesRepository is the profile document store, one row per account.
type ProfilesRepository struct {
	db *sql.DB
}

// NewProfilesRepository creates a new profiles repository.
func NewProfilesRepository(db *sql.DB) *ProfilesRepository {
	return &ProfilesRepository{db: db}
}

// ReadProfile retrieves the profile document for an account.
func (r *ProfilesRepository) ReadProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	query := `
		SELECT id, username, email, photo_url, created_at
		FROM profiles
		WHERE id = $1
	`
	p := &domain.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Username, &p.Email, &p.PhotoURL, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// WriteProfile creates or replaces the profile document keyed by account ID.
// created_at is written once and kept on later writes.
func (r *ProfilesRepository) WriteProfile(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, username, email, photo_url, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    email = EXCLUDED.email,
		    photo_url = EXCLUDED.photo_url
	`
	var createdAt any
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, query,
		p.ID, strings.ToLower(p.Username), strings.ToLower(p.Email), p.PhotoURL, createdAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrHandleTaken
	}
	return err
}

// UpdateProfile merges the non-nil fields into an existing profile.
func (r *ProfilesRepository) UpdateProfile(ctx context.Context, id uuid.UUID, u domain.ProfileUpdate) error {
	var username *string
	if u.Username != nil {
		lower := strings.ToLower(*u.Username)
		username = &lower
	}

	query := `
		UPDATE profiles
		SET username = COALESCE($2, username),
		    photo_url = COALESCE($3, photo_url)
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, username, u.PhotoURL)
	if isUniqueViolation(err) {
		return domain.ErrHandleTaken
	}
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// QueryByUsername returns all profiles whose username equals the lowercased value.
func (r *ProfilesRepository) QueryByUsername(ctx context.Context, username string) ([]*domain.Profile, error) {
	query := `
		SELECT id, username, email, photo_url, created_at
		FROM profiles
		WHERE username = $1
	`
	rows, err := r.db.QueryContext(ctx, query, strings.ToLower(username))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p := &domain.Profile{}
		if err := rows.Scan(&p.ID, &p.Username, &p.Email, &p.PhotoURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
