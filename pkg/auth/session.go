package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

const (
	refreshTokenLen = 32

	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	JWTSecret          []byte
	Issuer             string
	FingerprintEnabled bool
	DetectReuseEnabled bool
}

// SessionStore persists sessions. *repository.SessionsRepository satisfies it.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
}

// RecordReader loads identity records for token claims.
type RecordReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IdentityRecord, error)
}

// SessionService issues and validates application sessions.
type SessionService struct {
	config   SessionConfig
	sessions SessionStore
	users    RecordReader
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, sessions SessionStore, users RecordReader) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &SessionService{
		config:   config,
		sessions: sessions,
		users:    users,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// RefreshTokenTTL returns the refresh token TTL.
func (s *SessionService) RefreshTokenTTL() time.Duration {
	return s.config.RefreshTokenTTL
}

// IssueSessionOpts holds options for session issuance.
type IssueSessionOpts struct {
	IP        string
	UserAgent string
}

// OptsFromRequest fills session options from an HTTP request.
func OptsFromRequest(r *http.Request) IssueSessionOpts {
	return IssueSessionOpts{
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// AccessTokenClaims represents the claims in an access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// SessionContext returns the account and session the token was issued for.
func (c *AccessTokenClaims) SessionContext() (domain.SessionContext, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return domain.SessionContext{}, domain.ErrInvalidToken
	}
	return domain.SessionContext{AccountID: id, SessionID: c.ID}, nil
}

// IssueSession creates a new session and returns access/refresh tokens.
func (s *SessionService) IssueSession(ctx context.Context, userID uuid.UUID, opts IssueSessionOpts) (*domain.TokenPair, error) {
	rec, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// Refresh token is opaque and stored hashed
	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}

	if opts.IP != "" || opts.UserAgent != "" {
		metadata := domain.SessionMetadata{
			IP:        opts.IP,
			UserAgent: opts.UserAgent,
		}
		if s.config.FingerprintEnabled {
			metadata.FingerprintHash = FingerprintOf(opts).Hash()
		}
		metadataJSON, _ := json.Marshal(metadata)
		session.Metadata = metadataJSON
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return s.tokenPair(rec, session, refreshToken, now)
}

// RefreshSession issues a new access token for a valid refresh token.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string, opts IssueSessionOpts) (*domain.TokenPair, error) {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	if err := session.Check(time.Now()); err != nil {
		return nil, err
	}

	if s.config.FingerprintEnabled && s.config.DetectReuseEnabled {
		if metadata, ok := session.ClientMetadata(); ok {
			if err := checkFingerprint(metadata, opts); err != nil {
				_ = s.sessions.Revoke(ctx, session.ID)
				return nil, err
			}
		}
	}

	_ = s.sessions.UpdateLastSeen(ctx, session.ID)

	rec, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	return s.tokenPair(rec, session, refreshToken, time.Now())
}

// RevokeSession revokes a session by refresh token.
func (s *SessionService) RevokeSession(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeByTokenHash(ctx, HashToken(refreshToken))
}

// RevokeSessionByID revokes a session by its ID.
func (s *SessionService) RevokeSessionByID(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// RevokeAllSessions revokes all sessions for a user.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllByUserID(ctx, userID)
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}

// Authenticate validates an access token and checks that its session is
// still live, so a logout takes effect before the token expires.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (domain.SessionContext, error) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return domain.SessionContext{}, err
	}
	sc, err := claims.SessionContext()
	if err != nil {
		return domain.SessionContext{}, err
	}

	sessionID, err := uuid.Parse(sc.SessionID)
	if err != nil {
		return domain.SessionContext{}, domain.ErrInvalidToken
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.SessionContext{}, err
	}
	if err := session.Check(time.Now()); err != nil {
		return domain.SessionContext{}, err
	}
	if session.UserID != sc.AccountID {
		return domain.SessionContext{}, domain.ErrInvalidToken
	}

	return sc, nil
}

func (s *SessionService) tokenPair(rec *domain.IdentityRecord, session *domain.Session, refreshToken string, now time.Time) (*domain.TokenPair, error) {
	accessTokenExpiry := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessTokenExpiry),
			Issuer:    s.config.Issuer,
			ID:        session.ID.String(),
		},
		Email: rec.Email,
		Name:  rec.DisplayName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    accessTokenExpiry,
		SessionID:    session.ID,
		UserID:       rec.ID,
	}, nil
}
