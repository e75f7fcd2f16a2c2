package middleware

import "net/http"

// RequireTemporary returns middleware that only admits temporary tokens, the
// ones issued by Register and Login for the verification and MFA steps.
func RequireTemporary(v Validator, opts ...Option) func(http.Handler) http.Handler {
	return guard(v, ModeTemporary, opts...)
}
