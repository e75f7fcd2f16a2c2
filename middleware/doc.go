// Package middleware exposes net/http guards that authenticate bearer tokens
// through authflow.Engine.
//
// # Guards
//
//   - [Guard] accepts any valid token, temporary or permanent.
//   - [RequireTemporary] only admits temporary tokens (verification and MFA steps).
//   - [RequirePermanent] only admits permanent tokens.
//
// Each guard reads the Authorization header, calls ValidateToken once and
// stores the resulting *authflow.Session in the request context, where
// handlers read it with authflow.SessionFromContext.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement token checks itself; all decisions are delegated to the engine.
//
// # What this package must NOT do
//
//   - Parse or sign tokens directly.
//   - Access the store.
//   - Render response bodies beyond the default plain-text error; callers
//     that need an envelope pass [WithErrorHandler].
package middleware
