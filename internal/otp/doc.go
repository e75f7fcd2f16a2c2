// Package otp wraps RFC 6238 time-based codes and MFA backup codes.
//
// TOTP generation, provisioning URIs and QR images come from
// github.com/pquerna/otp. Backup codes are random strings over an alphabet
// without ambiguous glyphs; only their salted SHA-256 digests are persisted.
package otp
