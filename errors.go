package authflow

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation is the sentinel every *ValidationError unwraps to.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized is returned when a request carries no usable credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login for unknown identifiers and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired is returned when the expiry embedded in a signed token has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for tokens with a bad signature or format.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenNotFound is returned when a well-signed token has no valid, unexpired record.
	ErrTokenNotFound = errors.New("token not found")
	// ErrInvalidTokenType is returned when a temporary token is used where a permanent one is required, or the reverse.
	ErrInvalidTokenType = errors.New("invalid token type")
	// ErrInvalidOrExpiredCode is returned when no unused, unexpired verification code matches.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	// ErrInvalidCode is returned when an MFA code, backup code or email challenge does not verify.
	ErrInvalidCode = errors.New("invalid code")
	// ErrMFANotConfigured is returned by VerifyMFA when the user has no MFA config or no method.
	ErrMFANotConfigured = errors.New("MFA not configured")
	// ErrMFAMethodUnavailable is returned when the requested method is unknown or inactive.
	ErrMFAMethodUnavailable = errors.New("MFA method unavailable")
	// ErrNoPendingVerification is returned by ResendCode when the user has no unused code.
	ErrNoPendingVerification = errors.New("no pending verification found")
	// ErrTooManyAttempts is returned once a user exhausted the failed-attempt budget.
	ErrTooManyAttempts = errors.New("too many failed attempts")
	// ErrLimiterUnavailable is returned when the attempt limiter backend cannot be reached.
	ErrLimiterUnavailable = errors.New("attempt limiter unavailable")
	// ErrUserNotFound is returned when a token refers to a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrInternal wraps persistence and signing failures.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned when required collaborators are missing.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrRecordNotFound is returned by Store implementations when no row matches.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned by Store.CreateUser when the email is taken.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateUsername is returned by Store.CreateUser when the username is taken.
	ErrDuplicateUsername = errors.New("duplicate username")
)

// ValidationError carries field-level messages keyed by the JSON field name.
//
// Duplicate emails and usernames are reported through it as well, so callers
// never see a distinct "account exists" failure.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add records msg under field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool {
	return e == nil || len(e.Fields) == 0
}

func fieldError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}
