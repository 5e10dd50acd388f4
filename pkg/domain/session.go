package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session backs a refresh token. Only the token's hash is stored.
type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	Metadata   json.RawMessage
}

// SessionMetadata records the client a session was issued to.
type SessionMetadata struct {
	IP              string `json:"ip,omitempty"`
	UserAgent       string `json:"user_agent,omitempty"`
	FingerprintHash string `json:"fingerprint_hash,omitempty"`
}

// Check returns ErrSessionRevoked or ErrSessionExpired when the session can
// no longer be used at now.
func (s *Session) Check(now time.Time) error {
	if s.RevokedAt != nil {
		return ErrSessionRevoked
	}
	if !now.Before(s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// ClientMetadata decodes Metadata. ok is false when none was stored or it
// does not parse.
func (s *Session) ClientMetadata() (m SessionMetadata, ok bool) {
	if len(s.Metadata) == 0 {
		return m, false
	}
	if err := json.Unmarshal(s.Metadata, &m); err != nil {
		return m, false
	}
	return m, true
}

// TokenPair is handed to clients after sign-in or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    uuid.UUID `json:"-"`
	UserID       uuid.UUID `json:"-"`
}
