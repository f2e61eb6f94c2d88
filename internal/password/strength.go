package password

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minLength = 8
	maxLength = 128
)

// denylist holds substrings too common to allow, matched case-insensitively.
var denylist = []string{
	"password",
	"qwerty",
	"123456",
	"letmein",
	"welcome",
	"admin",
	"student",
	"teacher",
}

// StrengthResult reports every failing rule, not just the first.
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateStrength checks length, character-class and denylist rules.
func ValidateStrength(password string) StrengthResult {
	var errs []string
	if len(password) < minLength {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", minLength))
	}
	if len(password) > maxLength {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", maxLength))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower {
		errs = append(errs, "must contain a lowercase letter")
	}
	if !hasUpper {
		errs = append(errs, "must contain an uppercase letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain a digit")
	}
	if !hasSymbol {
		errs = append(errs, "must contain a symbol")
	}

	lowered := strings.ToLower(password)
	for _, banned := range denylist {
		if strings.Contains(lowered, banned) {
			errs = append(errs, fmt.Sprintf("must not contain %q", banned))
		}
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}
