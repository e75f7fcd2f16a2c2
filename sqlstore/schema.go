package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  is_verified BOOLEAN NOT NULL DEFAULT FALSE,
  has_mfa BOOLEAN NOT NULL DEFAULT FALSE,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS users_username_key ON users (username);

CREATE TABLE IF NOT EXISTS user_tokens (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token_hash TEXT NOT NULL UNIQUE,
  is_temporary BOOLEAN NOT NULL DEFAULT FALSE,
  is_valid BOOLEAN NOT NULL DEFAULT TRUE,
  device_type TEXT NOT NULL DEFAULT '',
  device_os TEXT NOT NULL DEFAULT '',
  device_browser TEXT NOT NULL DEFAULT '',
  created_at {{ts}} NOT NULL,
  expires_at {{ts}} NOT NULL,
  last_used_at {{ts}}
);
CREATE INDEX IF NOT EXISTS user_tokens_user_id_idx ON user_tokens (user_id);

CREATE TABLE IF NOT EXISTS verification_codes (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  code TEXT NOT NULL,
  purpose TEXT NOT NULL,
  is_used BOOLEAN NOT NULL DEFAULT FALSE,
  created_at {{ts}} NOT NULL,
  expires_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS verification_codes_user_id_idx ON verification_codes (user_id, is_used);

CREATE TABLE IF NOT EXISTS mfa_methods (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE
);
INSERT INTO mfa_methods (id, name, is_active) VALUES (1, 'otp', TRUE) ON CONFLICT (id) DO NOTHING;
INSERT INTO mfa_methods (id, name, is_active) VALUES (2, 'email', TRUE) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS user_mfa (
  user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  is_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  default_method_id BIGINT REFERENCES mfa_methods(id) ON DELETE SET NULL,
  otp_secret TEXT NOT NULL DEFAULT '',
  backup_codes TEXT NOT NULL DEFAULT '[]',
  version BIGINT NOT NULL DEFAULT 0,
  created_at {{ts}} NOT NULL,
  updated_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS mfa_verifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  method TEXT NOT NULL,
  code TEXT NOT NULL,
  session_key TEXT NOT NULL,
  is_verified BOOLEAN NOT NULL DEFAULT FALSE,
  verified_at {{ts}},
  created_at {{ts}} NOT NULL,
  expires_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS mfa_verifications_user_id_idx ON mfa_verifications (user_id, method, is_verified);
`

// timestampType is the column type used for times. modernc.org/sqlite only
// parses TEXT back into time.Time for DATE, DATETIME and TIMESTAMP columns.
func timestampType(driver string) string {
	if driver == DriverSQLite {
		return "TIMESTAMP"
	}
	return "TIMESTAMPTZ"
}

// Schema returns the DDL for driver.
func Schema(driver string) string {
	return strings.ReplaceAll(schemaTemplate, "{{ts}}", timestampType(driver))
}

// EnsureSchema creates the tables if they do not exist and seeds the MFA
// method catalog.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema(s.db.DriverName()), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
