// Package handle negotiates the uniqueness of user handles against the
// profile directory.
package handle

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// MinLength is the minimum handle length in characters.
const MinLength = 3

// Directory looks up profiles by lowercased username.
// platform.ProfileStore satisfies it.
type Directory interface {
	QueryByUsername(ctx context.Context, username string) ([]*domain.Profile, error)
}

// Editing identifies the account whose handle is being changed. The zero
// value means a new account is being created.
type Editing struct {
	AccountID uuid.UUID
	Handle    string
}

// Normalize returns the form handles are stored and compared in.
func Normalize(handle string) string {
	return strings.ToLower(handle)
}

// WellFormed reports whether a handle meets the length and whitespace rules.
func WellFormed(handle string) bool {
	if utf8.RuneCountInString(handle) < MinLength {
		return false
	}
	return strings.IndexFunc(handle, unicode.IsSpace) < 0
}

// precheck decides a candidate without a directory lookup when possible.
func precheck(candidate string, editing Editing) (State, bool) {
	if editing.Handle != "" && strings.EqualFold(candidate, editing.Handle) {
		return Available, true
	}
	if !WellFormed(candidate) {
		return Indeterminate, true
	}
	return Checking, false
}

// lookup queries the directory. A handle is available iff no profile other
// than the editing account holds it.
func lookup(ctx context.Context, dir Directory, candidate string, editing Editing) (State, error) {
	profiles, err := dir.QueryByUsername(ctx, Normalize(candidate))
	if err != nil {
		return Error, err
	}
	for _, p := range profiles {
		if editing.AccountID != uuid.Nil && p.ID == editing.AccountID {
			continue
		}
		return Taken, nil
	}
	return Available, nil
}

// Resolve evaluates a candidate immediately, without debouncing.
func Resolve(ctx context.Context, dir Directory, candidate string, editing Editing) (State, error) {
	if state, done := precheck(candidate, editing); done {
		return state, nil
	}
	return lookup(ctx, dir, candidate, editing)
}
