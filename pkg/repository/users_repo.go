package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

const userColumns = `id, email, display_name, photo_url, failed_login_attempts, locked_until, created_at, updated_at`

// UsersRepository persists identity records.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// CreateTx creates a new identity record within a transaction.
// Returns domain.ErrEmailInUse when the email is already registered.
func (r *UsersRepository) CreateTx(ctx context.Context, tx *sql.Tx, rec *domain.IdentityRecord) error {
	query := `
		INSERT INTO users (id, email, display_name, photo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		rec.ID, rec.Email, rec.DisplayName, rec.PhotoURL, rec.CreatedAt, rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrEmailInUse
	}
	return err
}

// CreateWithPassword creates an identity record and its password hash atomically.
func (r *UsersRepository) CreateWithPassword(ctx context.Context, rec *domain.IdentityRecord, cred *domain.UserPassword) error {
	creds := NewCredentialsRepository(r.db)
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, rec); err != nil {
			return err
		}
		return creds.CreateTx(ctx, tx, cred)
	})
}

// GetByID retrieves an identity record by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.IdentityRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an identity record by email, case-insensitively.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.IdentityRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail checks if an identity record exists for the email.
func (r *UsersRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// UpdateDisplayNameAndPhoto sets the display name and photo URL.
func (r *UsersRepository) UpdateDisplayNameAndPhoto(ctx context.Context, id uuid.UUID, name, photoURL string) error {
	query := `
		UPDATE users
		SET display_name = $2, photo_url = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, name, photoURL, time.Now())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// IncrementFailedLoginAttempts increments the failed sign-in counter and
// locks the record once maxAttempts is reached.
func (r *UsersRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, maxAttempts, lockoutDuration.Seconds())
	return err
}

// ResetFailedLoginAttempts resets the failed sign-in counter and clears lockout.
func (r *UsersRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func scanUser(row *sql.Row) (*domain.IdentityRecord, error) {
	rec := &domain.IdentityRecord{}
	err := row.Scan(
		&rec.ID, &rec.Email, &rec.DisplayName, &rec.PhotoURL,
		&rec.FailedLoginAttempts, &rec.LockedUntil,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
