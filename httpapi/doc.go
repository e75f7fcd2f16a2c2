// Package httpapi serves the authflow engine over HTTP with gorilla/mux.
//
// Routes live under /api/auth/ and keep their trailing slash:
//
//	POST      register/      none
//	POST      login/         none
//	POST      logout/        permanent token
//	POST      verify-code/   temporary token
//	POST      resend-code/   temporary token
//	GET       mfa/methods/   any valid token
//	GET,POST  mfa/configure/ permanent token
//	POST      mfa/verify/    any valid token; the engine decides
//
// GET /healthz and GET /metrics sit outside the prefix.
//
// Every response is the envelope {data, code, message?, errors?}; code is
// "success" unless an error or a pending challenge says otherwise.
//
// # Architecture boundaries
//
// Handlers decode requests, call exactly one engine operation and map its
// result or error to the envelope. Device metadata comes from the
// User-Agent header and rides on the request context.
package httpapi
