package identity

import (
	"errors"
	"fmt"
)

// Stable machine-readable denial codes. These are what a façade returns to
// clients; the wrapped diagnostic message is for operators and is safe to
// omit in production responses.
const (
	CodeValidation     = "validation_error"
	CodeAuthentication = "authentication_failed"
	CodeAuthorization  = "authorization_denied"
	CodeAccountLocked  = "account_locked"
	CodeMFARequired    = "mfa_required"
	CodeNotFound       = "not_found"
	CodeService        = "service_error"
)

// Sentinel errors for expected failure modes. Expected failures never cross
// the core boundary as panics; callers branch with errors.Is.
var (
	ErrNotFound           = errors.New("identity: not found")
	ErrInvalidInput       = errors.New("identity: invalid input")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInvalidToken       = errors.New("identity: invalid token")
	ErrTokenRevoked       = errors.New("identity: token revoked")
	ErrAccountLocked      = errors.New("identity: account locked")
	ErrAccountDisabled    = errors.New("identity: account disabled")
	ErrMFARequired        = errors.New("identity: mfa required")
	ErrInvalidMFACode     = errors.New("identity: invalid mfa code")
	ErrSetupNotFound      = errors.New("identity: mfa setup not found")
	ErrUnauthorized       = errors.New("identity: unauthorized")
)

// Error pairs a stable code with a diagnostic cause.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a coded error wrapping cause.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf maps an error to its stable machine-readable code. Unknown errors
// are reported as service failures, keeping the deny-by-default posture.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrAccountDisabled),
		errors.Is(err, ErrInvalidMFACode):
		return CodeAuthentication
	case errors.Is(err, ErrUnauthorized):
		return CodeAuthorization
	case errors.Is(err, ErrAccountLocked):
		return CodeAccountLocked
	case errors.Is(err, ErrMFARequired):
		return CodeMFARequired
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSetupNotFound):
		return CodeNotFound
	default:
		return CodeService
	}
}
