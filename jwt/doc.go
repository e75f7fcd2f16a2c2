// Package jwt issues and verifies the HS256 session tokens handed to clients.
//
// A token carries the owning user id, the email at issuance time and whether
// it is a temporary verification token. Signature validity alone does not make
// a token usable; the engine also checks the persisted record.
package jwt
