package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authflow"
)

type tokenRow struct {
	ID            string       `db:"id"`
	UserID        string       `db:"user_id"`
	TokenHash     string       `db:"token_hash"`
	IsTemporary   bool         `db:"is_temporary"`
	IsValid       bool         `db:"is_valid"`
	DeviceType    string       `db:"device_type"`
	DeviceOS      string       `db:"device_os"`
	DeviceBrowser string       `db:"device_browser"`
	CreatedAt     time.Time    `db:"created_at"`
	ExpiresAt     time.Time    `db:"expires_at"`
	LastUsedAt    sql.NullTime `db:"last_used_at"`
}

func (r tokenRow) token() authflow.Token {
	return authflow.Token{
		ID:          r.ID,
		UserID:      r.UserID,
		TokenHash:   r.TokenHash,
		IsTemporary: r.IsTemporary,
		IsValid:     r.IsValid,
		Device: authflow.Device{
			Type:    r.DeviceType,
			OS:      r.DeviceOS,
			Browser: r.DeviceBrowser,
		},
		CreatedAt:  r.CreatedAt.UTC(),
		ExpiresAt:  r.ExpiresAt.UTC(),
		LastUsedAt: timePtr(r.LastUsedAt),
	}
}

const tokenColumns = `id, user_id, token_hash, is_temporary, is_valid, device_type, device_os, device_browser, created_at, expires_at, last_used_at`

// CreateToken inserts t. TokenHash must already be the digest of the raw token.
func (s *Store) CreateToken(ctx context.Context, t authflow.Token) error {
	q := s.rebind(`INSERT INTO user_tokens (` + tokenColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		t.ID, t.UserID, t.TokenHash, t.IsTemporary, t.IsValid,
		t.Device.Type, t.Device.OS, t.Device.Browser,
		utc(t.CreatedAt), utc(t.ExpiresAt), nullTime(t.LastUsedAt),
	)
	return err
}

// ValidToken returns the valid, unexpired record for tokenHash.
func (s *Store) ValidToken(ctx context.Context, tokenHash string, now time.Time) (authflow.Token, error) {
	var row tokenRow
	q := s.rebind(`SELECT ` + tokenColumns + ` FROM user_tokens
		WHERE token_hash = ? AND is_valid = TRUE AND expires_at > ?`)
	if err := s.db.GetContext(ctx, &row, q, tokenHash, utc(now)); err != nil {
		return authflow.Token{}, notFound(err)
	}
	return row.token(), nil
}

// TouchToken sets last_used_at. A missing id is not an error.
func (s *Store) TouchToken(ctx context.Context, id string, now time.Time) error {
	q := s.rebind(`UPDATE user_tokens SET last_used_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, utc(now), id)
	return err
}

// RevokeToken is idempotent: revoking an unknown or already revoked token succeeds.
func (s *Store) RevokeToken(ctx context.Context, userID, tokenHash string) error {
	q := s.rebind(`UPDATE user_tokens SET is_valid = FALSE WHERE user_id = ? AND token_hash = ?`)
	_, err := s.db.ExecContext(ctx, q, userID, tokenHash)
	return err
}

// PurgeExpiredTokens deletes records that expired before now.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	q := s.rebind(`DELETE FROM user_tokens WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, q, utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
