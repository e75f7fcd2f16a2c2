// Package authflow implements an email-and-password authentication state
// machine with session tokens, email verification codes and multi-factor
// authentication (TOTP with backup codes, or emailed codes).
//
// A user moves from registered to email-verified to fully authenticated.
// Two kinds of session token gate the transitions: temporary tokens (short
// lived, valid only for the verification and MFA steps) and permanent tokens
// (for everything else). Both are HS256 JWTs backed by a stored record, so
// they can be revoked.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Engine], [Builder], [Config], the
// [Store] interface and value types. Persistence lives in sqlstore, HTTP in
// httpapi and middleware; token signing, password hashing, TOTP, the attempt
// limiter and mail dispatch are leaf packages the engine wires together.
//
// # What this package must NOT do
//
//   - Import sqlstore, httpapi or middleware (they import authflow).
//   - Keep per-request state; every single-use guarantee is a conditional
//     write in the Store.
//   - Reveal whether an account exists through Login errors.
package authflow
