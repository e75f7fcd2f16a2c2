package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authflow"
)

const (
	codeSuccess                 = "success"
	codeValidation              = "validation_error"
	codeInvalidCredentials      = "invalid_credentials"
	codeUnauthorized            = "unauthorized"
	codeInvalidTokenType        = "invalid_token_type"
	codeInvalidVerificationCode = "invalid_verification_code"
	codeInvalidCode             = "invalid_code"
	codeMFANotConfigured        = "mfa_not_configured"
	codeNoPendingVerification   = "no_pending_verification"
	codeTooManyAttempts         = "too_many_attempts"
	codeInternal                = "internal_error"
	codeEmailNotVerified        = "email_not_verified"
	codeMFARequired             = "mfa_verification_required"
)

type envelope struct {
	Data    any                 `json:"data"`
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type object = map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if body.Data == nil {
		body.Data = object{}
	}
	if body.Code == "" {
		body.Code = codeSuccess
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data, Message: message})
}

// errorResponse maps engine errors to status, code and message.
func errorResponse(err error) (int, envelope) {
	var verr *authflow.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, envelope{Code: codeValidation, Message: "Invalid request data", Errors: verr.Fields}
	}

	switch {
	case errors.Is(err, authflow.ErrInvalidCredentials):
		return http.StatusUnauthorized, envelope{Code: codeInvalidCredentials, Message: "Invalid credentials"}
	case errors.Is(err, authflow.ErrTokenExpired),
		errors.Is(err, authflow.ErrTokenInvalid),
		errors.Is(err, authflow.ErrTokenNotFound),
		errors.Is(err, authflow.ErrUserNotFound),
		errors.Is(err, authflow.ErrUnauthorized):
		return http.StatusUnauthorized, envelope{Code: codeUnauthorized, Message: "Authentication credentials were not provided or are invalid"}
	case errors.Is(err, authflow.ErrInvalidTokenType):
		return http.StatusBadRequest, envelope{Code: codeInvalidTokenType, Message: "Invalid token type"}
	case errors.Is(err, authflow.ErrInvalidOrExpiredCode):
		return http.StatusBadRequest, envelope{Code: codeInvalidVerificationCode, Message: "Invalid or expired verification code"}
	case errors.Is(err, authflow.ErrInvalidCode):
		return http.StatusBadRequest, envelope{Code: codeInvalidCode, Message: "Invalid code"}
	case errors.Is(err, authflow.ErrMFANotConfigured):
		return http.StatusBadRequest, envelope{Code: codeMFANotConfigured, Message: "MFA not configured"}
	case errors.Is(err, authflow.ErrNoPendingVerification):
		return http.StatusBadRequest, envelope{Code: codeNoPendingVerification, Message: "No pending verification found"}
	case errors.Is(err, authflow.ErrMFAMethodUnavailable):
		return http.StatusBadRequest, envelope{
			Code:    codeValidation,
			Message: "Invalid request data",
			Errors:  map[string][]string{"default_method": {"Select a valid choice. That choice is not one of the available choices."}},
		}
	case errors.Is(err, authflow.ErrTooManyAttempts):
		return http.StatusTooManyRequests, envelope{Code: codeTooManyAttempts, Message: "Too many failed attempts, try again later"}
	default:
		return http.StatusInternalServerError, envelope{Code: codeInternal, Message: "Internal server error"}
	}
}

func badJSON() *authflow.ValidationError {
	v := &authflow.ValidationError{}
	v.Add("non_field_errors", "Malformed JSON request body.")
	return v
}
