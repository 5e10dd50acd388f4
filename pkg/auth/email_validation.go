package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

var disposableDomains = map[string]struct{}{
	"10minutemail.com":  {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"tempmail.com":      {},
	"throwaway.email":   {},
	"yopmail.com":       {},
}

// strictEmail rejects quoted local parts and address literals that
// net/mail accepts.
var strictEmail = regexp.MustCompile(`^[a-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)*$`)

// EmailPolicy decides which addresses may register.
type EmailPolicy struct {
	Strict          bool
	BlockDisposable bool
}

// Check returns an error wrapping domain.ErrInvalidEmail when email is
// rejected. The address is normalized first.
func (p EmailPolicy) Check(email string) error {
	email = NormalizeEmail(email)
	switch {
	case email == "":
		return invalidEmail("email address is required")
	case len(email) > maxEmailLength:
		return invalidEmail(fmt.Sprintf("email address is too long (max %d characters)", maxEmailLength))
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidEmail("invalid email address format")
	}
	if p.Strict && !strictEmail.MatchString(email) {
		return invalidEmail("invalid email address format")
	}
	if p.BlockDisposable {
		_, host, _ := strings.Cut(email, "@")
		if _, ok := disposableDomains[host]; ok {
			return invalidEmail("disposable email addresses are not allowed")
		}
	}
	return nil
}

// NormalizeEmail lowercases and trims an address. Emails are stored and
// compared in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidEmail(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidEmail, reason)
}
