package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// Authenticator verifies email/password credentials.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*domain.IdentityRecord, error)
}

// SessionIssuer mints an application session for a verified account.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID uuid.UUID, opts IssueSessionOpts) (*domain.TokenPair, error)
}

// SignInHook runs after a successful sign-in and session issuance.
type SignInHook func(ctx context.Context, accountID uuid.UUID)

// Bridge exchanges credentials for an application session.
type Bridge struct {
	identity Authenticator
	sessions SessionIssuer
	hooks    []SignInHook
}

// NewBridge creates a session bridge.
func NewBridge(identity Authenticator, sessions SessionIssuer) *Bridge {
	return &Bridge{identity: identity, sessions: sessions}
}

// OnSignIn registers a hook run after every established session.
func (b *Bridge) OnSignIn(hook SignInHook) {
	b.hooks = append(b.hooks, hook)
}

type optsKey struct{}

// WithSessionOpts attaches request metadata used when a session is issued.
func WithSessionOpts(ctx context.Context, opts IssueSessionOpts) context.Context {
	return context.WithValue(ctx, optsKey{}, opts)
}

func sessionOptsFrom(ctx context.Context) IssueSessionOpts {
	opts, _ := ctx.Value(optsKey{}).(IssueSessionOpts)
	return opts
}

// EstablishSession signs in and issues a session. Sign-in failures are
// returned unchanged. When sign-in succeeds but issuance fails the result is
// domain.ErrSessionAbsent and the caller must retry a manual login.
func (b *Bridge) EstablishSession(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	rec, err := b.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	pair, err := b.sessions.IssueSession(ctx, rec.ID, sessionOptsFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionAbsent, err)
	}

	for _, hook := range b.hooks {
		hook(ctx, rec.ID)
	}
	return pair, nil
}
