package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return mr, client
}

func TestRedisResetStore_SaveAndConsume(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisResetStore(client, "")
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.Save(ctx, "hash-1", userID, time.Minute))

	got, err := store.Consume(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = store.Consume(ctx, "hash-1")
	assert.ErrorIs(t, err, domain.ErrResetTokenNotFound)
}

func TestRedisResetStore_Expired(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisResetStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "hash-2", uuid.New(), time.Minute))
	assert.True(t, mr.Exists("test:hash-2"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Consume(ctx, "hash-2")
	assert.ErrorIs(t, err, domain.ErrResetTokenNotFound)
}

func TestRedisResetStore_DefaultTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisResetStore(client, "")

	require.NoError(t, store.Save(context.Background(), "hash-3", uuid.New(), 0))
	assert.Equal(t, DefaultResetTokenTTL, mr.TTL("pwreset:hash-3"))
}

func TestRedisResetStore_CorruptValue(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisResetStore(client, "")
	require.NoError(t, mr.Set("pwreset:hash-4", "not-a-uuid"))

	_, err := store.Consume(context.Background(), "hash-4")
	assert.ErrorIs(t, err, domain.ErrResetTokenInvalid)
}

func TestRedisResetStore_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisResetStore(client, "")
	mr.Close()

	err := store.Save(context.Background(), "hash-5", uuid.New(), time.Minute)
	assert.ErrorIs(t, err, domain.ErrResetUnavailable)
}
