package middleware

import "net/http"

// RequirePermanent rejects requests without a valid permanent token.
func RequirePermanent(v Validator, opts ...Option) func(http.Handler) http.Handler {
	return guard(v, ModePermanent, opts...)
}
