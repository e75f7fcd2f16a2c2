// Package internal contains helpers private to authflow: random codes and
// record identifiers.
//
// # Sub-packages
//
//   - limiters: Redis failed-attempt counters for code and MFA verification
//   - logging: zap logger construction
//   - otp: TOTP and backup codes
//
// Nothing here appears in the public authflow API.
package internal
