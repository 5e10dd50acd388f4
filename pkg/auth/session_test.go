package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

type memSessions struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*domain.Session
	createErr error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[uuid.UUID]*domain.Session{}}
}

func (m *memSessions) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (m *memSessions) Revoke(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return domain.ErrSessionNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	return nil
}

func (m *memSessions) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *memSessions) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *memSessions) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		now := time.Now()
		s.LastSeenAt = &now
	}
	return nil
}

var testSecret = []byte("test-secret-key-for-sessions")

func newTestSessions(t *testing.T, cfg SessionConfig) (*SessionService, *memSessions, *memUsers, uuid.UUID) {
	t.Helper()
	users := newMemUsers()
	id := uuid.New()
	users.recs[id] = &domain.IdentityRecord{ID: id, Email: "alice@example.com", DisplayName: "Alice"}

	if cfg.JWTSecret == nil {
		cfg.JWTSecret = testSecret
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "simple-idm-profile"
	}
	store := newMemSessions()
	return NewSessionService(cfg, store, users), store, users, id
}

func TestSessionService_Defaults(t *testing.T) {
	svc := NewSessionService(SessionConfig{}, nil, nil)
	assert.Equal(t, DefaultAccessTokenTTL, svc.AccessTokenTTL())
	assert.Equal(t, DefaultRefreshTokenTTL, svc.RefreshTokenTTL())
}

func TestSessionService_IssueAndValidate(t *testing.T) {
	svc, store, _, id := newTestSessions(t, SessionConfig{})
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, id, IssueSessionOpts{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int(DefaultAccessTokenTTL.Seconds()), pair.ExpiresIn)
	assert.Equal(t, id, pair.UserID)
	assert.NotEmpty(t, pair.RefreshToken)

	stored := store.sessions[pair.SessionID]
	require.NotNil(t, stored)
	assert.Equal(t, HashToken(pair.RefreshToken), stored.TokenHash)
	assert.Contains(t, string(stored.Metadata), `"ip":"10.0.0.1"`)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, pair.SessionID.String(), claims.ID)

	sc, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, sc.AccountID)
	assert.Equal(t, pair.SessionID.String(), sc.SessionID)
}

func TestSessionService_IssueUnknownUser(t *testing.T) {
	svc, _, _, _ := newTestSessions(t, SessionConfig{})

	_, err := svc.IssueSession(context.Background(), uuid.New(), IssueSessionOpts{})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSessionService_ValidateAccessToken_Rejects(t *testing.T) {
	svc, _, _, id := newTestSessions(t, SessionConfig{})

	_, err := svc.ValidateAccessToken("garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	other, _, _, _ := newTestSessions(t, SessionConfig{JWTSecret: []byte("another-secret")})
	pair, err := other.IssueSession(context.Background(), firstUser(other), IssueSessionOpts{})
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString(testSecret)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func firstUser(svc *SessionService) uuid.UUID {
	for id := range svc.users.(*memUsers).recs {
		return id
	}
	return uuid.Nil
}

func TestSessionService_Refresh(t *testing.T) {
	svc, store, _, id := newTestSessions(t, SessionConfig{})
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, id, IssueSessionOpts{})
	require.NoError(t, err)

	refreshed, err := svc.RefreshSession(ctx, pair.RefreshToken, IssueSessionOpts{})
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, pair.SessionID, refreshed.SessionID)
	assert.NotNil(t, store.sessions[pair.SessionID].LastSeenAt)

	_, err = svc.RefreshSession(ctx, "unknown", IssueSessionOpts{})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionService_RefreshExpired(t *testing.T) {
	svc, store, _, id := newTestSessions(t, SessionConfig{})
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, id, IssueSessionOpts{})
	require.NoError(t, err)
	store.sessions[pair.SessionID].ExpiresAt = time.Now().Add(-time.Second)

	_, err = svc.RefreshSession(ctx, pair.RefreshToken, IssueSessionOpts{})
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestSessionService_RevokeEndsSession(t *testing.T) {
	svc, _, _, id := newTestSessions(t, SessionConfig{})
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, id, IssueSessionOpts{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, pair.RefreshToken))

	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)

	_, err = svc.RefreshSession(ctx, pair.RefreshToken, IssueSessionOpts{})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionService_RevokeAll(t *testing.T) {
	svc, _, _, id := newTestSessions(t, SessionConfig{})
	ctx := context.Background()

	a, err := svc.IssueSession(ctx, id, IssueSessionOpts{})
	require.NoError(t, err)
	b, err := svc.IssueSession(ctx, id, IssueSessionOpts{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllSessions(ctx, id))

	for _, pair := range []*domain.TokenPair{a, b} {
		_, err := svc.Authenticate(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, domain.ErrSessionRevoked)
	}

	assert.ErrorIs(t, svc.RevokeSessionByID(ctx, a.SessionID), domain.ErrSessionNotFound)
}

func TestSessionService_FingerprintMismatch(t *testing.T) {
	svc, store, _, id := newTestSessions(t, SessionConfig{FingerprintEnabled: true, DetectReuseEnabled: true})
	ctx := context.Background()

	req := httptest.NewRequest("POST", "/v1/auth/login", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	req.Header.Set("User-Agent", "browser-a")

	pair, err := svc.IssueSession(ctx, id, OptsFromRequest(req))
	require.NoError(t, err)

	same := httptest.NewRequest("POST", "/v1/auth/refresh", nil)
	same.RemoteAddr = "192.168.1.1:9999"
	same.Header.Set("User-Agent", "browser-a")
	_, err = svc.RefreshSession(ctx, pair.RefreshToken, OptsFromRequest(same))
	require.NoError(t, err)

	stolen := httptest.NewRequest("POST", "/v1/auth/refresh", nil)
	stolen.RemoteAddr = "203.0.113.9:1234"
	stolen.Header.Set("User-Agent", "browser-a")
	_, err = svc.RefreshSession(ctx, pair.RefreshToken, OptsFromRequest(stolen))
	assert.ErrorIs(t, err, domain.ErrSessionFingerprint)
	assert.NotNil(t, store.sessions[pair.SessionID].RevokedAt)
}

func TestSessionService_AuthenticateMismatchedSubject(t *testing.T) {
	svc, store, _, id := newTestSessions(t, SessionConfig{})
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, id, IssueSessionOpts{})
	require.NoError(t, err)
	store.sessions[pair.SessionID].UserID = uuid.New()

	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}
