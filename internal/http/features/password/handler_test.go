package password

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-profile/internal/httputil"
	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

type fakeRequester struct {
	emails []string
}

func (f *fakeRequester) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return &domain.ValidationError{Field: "email", Message: workflow.MsgEmailRequired}
	}
	f.emails = append(f.emails, email)
	return nil
}

type fakeResetter struct {
	tokens map[string]uuid.UUID
	err    error
}

func (f *fakeResetter) ResetPassword(ctx context.Context, token, newPassword string) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id, ok := f.tokens[token]
	if !ok {
		return uuid.Nil, domain.ErrResetTokenNotFound
	}
	delete(f.tokens, token)
	return id, nil
}

type fakeRevoker struct {
	revoked []uuid.UUID
	err     error
}

func (f *fakeRevoker) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	f.revoked = append(f.revoked, userID)
	return f.err
}

func newTestHandler() (*Handler, *fakeRequester, *fakeResetter, *fakeRevoker, uuid.UUID) {
	id := uuid.New()
	requester := &fakeRequester{}
	resetter := &fakeResetter{tokens: map[string]uuid.UUID{"good-token": id}}
	revoker := &fakeRevoker{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewHandler(logger, requester, resetter, revoker), requester, resetter, revoker, id
}

func TestRequestPasswordReset(t *testing.T) {
	h, requester, _, _, _ := newTestHandler()

	rec := httptest.NewRecorder()
	h.RequestPasswordReset(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/password/reset-request", strings.NewReader(`{"email":"nobody@example.com"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, MsgResetRequested, resp.Message)
	assert.Equal(t, []string{"nobody@example.com"}, requester.emails)
}

func TestRequestPasswordReset_Validation(t *testing.T) {
	h, _, _, _, _ := newTestHandler()

	rec := httptest.NewRecorder()
	h.RequestPasswordReset(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/password/reset-request", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.RequestPasswordReset(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/password/reset-request", strings.NewReader(`{invalid}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPassword(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedField  string
		expectRevoke   bool
	}{
		{
			name:           "success",
			body:           `{"token":"good-token","new_password":"Abc12345!","new_password_confirmation":"Abc12345!"}`,
			expectedStatus: http.StatusOK,
			expectRevoke:   true,
		},
		{
			name:           "missing token",
			body:           `{"new_password":"Abc12345!"}`,
			expectedStatus: http.StatusBadRequest,
			expectedField:  "token",
		},
		{
			name:           "weak password",
			body:           `{"token":"good-token","new_password":"abc12345"}`,
			expectedStatus: http.StatusBadRequest,
			expectedField:  "new_password",
		},
		{
			name:           "mismatched confirmation",
			body:           `{"token":"good-token","new_password":"Abc12345!","new_password_confirmation":"Abc12345?"}`,
			expectedStatus: http.StatusBadRequest,
			expectedField:  "new_password_confirmation",
		},
		{
			name:           "unknown token",
			body:           `{"token":"stale","new_password":"Abc12345!"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, revoker, id := newTestHandler()

			rec := httptest.NewRecorder()
			h.ResetPassword(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/password/reset", strings.NewReader(tt.body)))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedField != "" {
				var resp httputil.ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, tt.expectedField, resp.Field)
			}
			if tt.expectRevoke {
				assert.Equal(t, []uuid.UUID{id}, revoker.revoked)
			} else {
				assert.Empty(t, revoker.revoked)
			}
		})
	}
}

func TestResetPassword_RevokeFailureStillSucceeds(t *testing.T) {
	h, _, _, revoker, _ := newTestHandler()
	revoker.err = errors.New("db down")

	rec := httptest.NewRecorder()
	h.ResetPassword(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/password/reset", strings.NewReader(`{"token":"good-token","new_password":"Abc12345!"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPassword_StoreUnavailable(t *testing.T) {
	h, _, resetter, _, _ := newTestHandler()
	resetter.err = domain.ErrResetUnavailable

	rec := httptest.NewRecorder()
	h.ResetPassword(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/password/reset", strings.NewReader(`{"token":"good-token","new_password":"Abc12345!"}`)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
