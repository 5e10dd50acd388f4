package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/platform"
)

var errUnavailable = errors.New("service unavailable")

type fakeIdentity struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*domain.IdentityRecord
	passwords map[uuid.UUID]string
	createErr error
	updateErr error
	resetErr  error
	resets    []string
	calls     []string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		records:   map[uuid.UUID]*domain.IdentityRecord{},
		passwords: map[uuid.UUID]string{},
	}
}

func (f *fakeIdentity) CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, r := range f.records {
		if r.Email == email {
			return uuid.Nil, domain.ErrEmailInUse
		}
	}
	id := uuid.New()
	f.records[id] = &domain.IdentityRecord{ID: id, Email: email, CreatedAt: time.Now()}
	f.passwords[id] = password
	return id, nil
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, password string) (*domain.IdentityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for id, r := range f.records {
		if r.Email == email && f.passwords[id] == password {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrInvalidCredentials
}

func (f *fakeIdentity) SendPasswordReset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, email)
	return f.resetErr
}

func (f *fakeIdentity) UpdateDisplayNameAndAvatar(ctx context.Context, id uuid.UUID, name, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+name)
	if f.updateErr != nil {
		return f.updateErr
	}
	r, ok := f.records[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	r.DisplayName = name
	r.PhotoURL = avatarURL
	return nil
}

func (f *fakeIdentity) GetRecord(ctx context.Context, id uuid.UUID) (*domain.IdentityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeIdentity) record(id uuid.UUID) domain.IdentityRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

type fakeContent struct {
	mu         sync.Mutex
	objects    map[string][]byte
	uploadErr  error
	resolveErr error
	// signed makes every resolved URL carry a fresh signature.
	signed   bool
	resolves int
}

func newFakeContent() *fakeContent {
	return &fakeContent{objects: map[string][]byte{}}
}

func (f *fakeContent) UploadFile(ctx context.Context, key string, data []byte, contentType string) (platform.StorageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return platform.StorageRef{}, f.uploadErr
	}
	f.objects[key] = data
	return platform.StorageRef{Bucket: "test", Key: key}, nil
}

func (f *fakeContent) ResolveDownloadURL(ctx context.Context, ref platform.StorageRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	f.resolves++
	if f.signed {
		return fmt.Sprintf("https://cdn.test/%s?X-Amz-Signature=%d", ref.Key, f.resolves), nil
	}
	return "https://cdn.test/" + ref.Key, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*domain.Profile
	writeErr error
	queryErr error
	writes   int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[uuid.UUID]*domain.Profile{}}
}

func (f *fakeProfiles) ReadProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) taken(id uuid.UUID, username string) bool {
	for pid, p := range f.profiles {
		if pid != id && p.Username == username {
			return true
		}
	}
	return false
}

func (f *fakeProfiles) WriteProfile(ctx context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	username := strings.ToLower(p.Username)
	if f.taken(p.ID, username) {
		return domain.ErrHandleTaken
	}
	cp := *p
	cp.Username = username
	cp.Email = strings.ToLower(p.Email)
	if old, ok := f.profiles[p.ID]; ok {
		cp.CreatedAt = old.CreatedAt
	}
	f.profiles[p.ID] = &cp
	return nil
}

func (f *fakeProfiles) UpdateProfile(ctx context.Context, id uuid.UUID, u domain.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	if u.Username != nil {
		username := strings.ToLower(*u.Username)
		if f.taken(id, username) {
			return domain.ErrHandleTaken
		}
		p.Username = username
	}
	if u.PhotoURL != nil {
		p.PhotoURL = *u.PhotoURL
	}
	return nil
}

func (f *fakeProfiles) QueryByUsername(ctx context.Context, username string) ([]*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []*domain.Profile
	for _, p := range f.profiles {
		if p.Username == strings.ToLower(username) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeSessions struct {
	identity *fakeIdentity
	err      error
}

func (f *fakeSessions) EstablishSession(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, err := f.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: "access-" + rec.ID.String(), RefreshToken: "refresh", TokenType: "Bearer", UserID: rec.ID}, nil
}

type harness struct {
	ctrl     *Controller
	identity *fakeIdentity
	content  *fakeContent
	profiles *fakeProfiles
	sessions *fakeSessions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	identity := newFakeIdentity()
	h := &harness{
		identity: identity,
		content:  newFakeContent(),
		profiles: newFakeProfiles(),
		sessions: &fakeSessions{identity: identity},
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h.ctrl = New(h.identity, h.content, h.profiles, h.sessions, WithLogger(logger))
	return h
}
