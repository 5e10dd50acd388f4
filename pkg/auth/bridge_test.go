package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

func newTestBridge(t *testing.T) (*Bridge, *IdentityService, *memSessions) {
	t.Helper()
	users := newMemUsers()
	identity := NewIdentityService(IdentityConfig{}, users, users, nil, nil)
	store := newMemSessions()
	sessions := NewSessionService(SessionConfig{JWTSecret: testSecret}, store, users)
	return NewBridge(identity, sessions), identity, store
}

func TestBridge_EstablishSession(t *testing.T) {
	bridge, identity, store := newTestBridge(t)
	ctx := context.Background()

	id, err := identity.CreateCredential(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)

	var hooked []uuid.UUID
	bridge.OnSignIn(func(ctx context.Context, accountID uuid.UUID) {
		hooked = append(hooked, accountID)
	})

	ctx = WithSessionOpts(ctx, IssueSessionOpts{IP: "10.1.1.1", UserAgent: "ua"})
	pair, err := bridge.EstablishSession(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, id, pair.UserID)
	assert.Equal(t, []uuid.UUID{id}, hooked)
	assert.Contains(t, string(store.sessions[pair.SessionID].Metadata), "10.1.1.1")
}

func TestBridge_SignInFailurePassesThrough(t *testing.T) {
	bridge, _, store := newTestBridge(t)

	called := false
	bridge.OnSignIn(func(ctx context.Context, accountID uuid.UUID) { called = true })

	_, err := bridge.EstablishSession(context.Background(), "nobody@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.NotErrorIs(t, err, domain.ErrSessionAbsent)
	assert.False(t, called)
	assert.Empty(t, store.sessions)
}

func TestBridge_IssuanceFailureIsSessionAbsent(t *testing.T) {
	bridge, identity, store := newTestBridge(t)
	ctx := context.Background()

	_, err := identity.CreateCredential(ctx, "bob@example.com", "Passw0rd!")
	require.NoError(t, err)

	store.createErr = errors.New("db down")
	_, err = bridge.EstablishSession(ctx, "bob@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, domain.ErrSessionAbsent)
}
