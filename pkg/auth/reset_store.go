package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// DefaultResetTokenTTL is how long a password reset link stays usable.
const DefaultResetTokenTTL = time.Hour

// ResetTokenStore holds single-use password reset tokens keyed by their hash.
type ResetTokenStore interface {
	Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error
	// Consume returns domain.ErrResetTokenNotFound for unknown or expired tokens.
	Consume(ctx context.Context, tokenHash string) (uuid.UUID, error)
}

// RedisResetStore stores reset tokens in Redis with a TTL.
type RedisResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisResetStore creates a Redis-backed reset token store.
func NewRedisResetStore(client redis.UniversalClient, prefix string) *RedisResetStore {
	if prefix == "" {
		prefix = "pwreset"
	}
	return &RedisResetStore{redis: client, prefix: prefix}
}

func (s *RedisResetStore) key(tokenHash string) string {
	return s.prefix + ":" + tokenHash
}

// Save stores the token hash for the user until ttl elapses.
func (s *RedisResetStore) Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	if err := s.redis.Set(ctx, s.key(tokenHash), userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrResetUnavailable, err)
	}
	return nil
}

// Consume atomically reads and deletes the token.
func (s *RedisResetStore) Consume(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	const maxRetries = 4
	key := s.key(tokenHash)

	for i := 0; i < maxRetries; i++ {
		var userID uuid.UUID

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			value, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}

			id, err := uuid.Parse(value)
			if err != nil {
				return domain.ErrResetTokenInvalid
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			userID = id
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return uuid.Nil, domain.ErrResetTokenNotFound
			case errors.Is(err, domain.ErrResetTokenInvalid):
				return uuid.Nil, err
			default:
				return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrResetUnavailable, err)
			}
		}

		return userID, nil
	}

	return uuid.Nil, domain.ErrResetTokenNotFound
}
