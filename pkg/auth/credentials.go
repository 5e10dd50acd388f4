package auth

import (
	"strings"
)

// MinPasswordLength is the minimum password length in bytes.
const MinPasswordLength = 8

// SpecialChars is the fixed punctuation set accepted as special characters.
const SpecialChars = `!@#$%^&*(),.?":{}|<>`

// PasswordFacets reports each password requirement independently.
type PasswordFacets struct {
	MinLength    bool `json:"minLength"`
	HasNumber    bool `json:"hasNumber"`
	HasSpecial   bool `json:"hasSpecial"`
	HasUppercase bool `json:"hasUppercase"`
	HasLowercase bool `json:"hasLowercase"`
}

// CheckPassword evaluates a candidate password against the policy.
func CheckPassword(password string) PasswordFacets {
	return PasswordFacets{
		MinLength:    len(password) >= MinPasswordLength,
		HasNumber:    containsNumber(password),
		HasSpecial:   containsSpecial(password),
		HasUppercase: containsUppercase(password),
		HasLowercase: containsLowercase(password),
	}
}

// Valid returns true when every facet is satisfied.
func (f PasswordFacets) Valid() bool {
	return f.MinLength && f.HasNumber && f.HasSpecial && f.HasUppercase && f.HasLowercase
}

// Unmet returns the names of the unsatisfied facets in policy order.
func (f PasswordFacets) Unmet() []string {
	var unmet []string
	if !f.MinLength {
		unmet = append(unmet, "at least 8 characters")
	}
	if !f.HasNumber {
		unmet = append(unmet, "one number")
	}
	if !f.HasSpecial {
		unmet = append(unmet, "one special character")
	}
	if !f.HasUppercase {
		unmet = append(unmet, "one uppercase letter")
	}
	if !f.HasLowercase {
		unmet = append(unmet, "one lowercase letter")
	}
	return unmet
}

// Requirements describes the unmet facets for display.
// It returns an empty string for a valid password.
func (f PasswordFacets) Requirements() string {
	unmet := f.Unmet()
	if len(unmet) == 0 {
		return ""
	}
	return "Please meet all password requirements: " + strings.Join(unmet, ", ")
}

// PasswordsMatch reports whether the confirmation is byte-equal to the password.
func PasswordsMatch(password, confirmation string) bool {
	return password == confirmation
}

func containsUppercase(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			return true
		}
	}
	return false
}

func containsLowercase(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			return true
		}
	}
	return false
}

func containsNumber(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}

func containsSpecial(s string) bool {
	return strings.ContainsAny(s, SpecialChars)
}
