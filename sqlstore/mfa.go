package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/jmoiron/sqlx"
)

type mfaRow struct {
	UserID      string    `db:"user_id"`
	IsEnabled   bool      `db:"is_enabled"`
	Method      string    `db:"method"`
	OTPSecret   string    `db:"otp_secret"`
	BackupCodes string    `db:"backup_codes"`
	Version     int64     `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r mfaRow) config() (authflow.MFAConfig, error) {
	cfg := authflow.MFAConfig{
		UserID:    r.UserID,
		IsEnabled: r.IsEnabled,
		OTPSecret: r.OTPSecret,
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.Method != "" {
		method, err := authflow.ParseMFAMethod(r.Method)
		if err != nil {
			return authflow.MFAConfig{}, err
		}
		cfg.DefaultMethod = method
	}
	if r.BackupCodes != "" {
		if err := json.Unmarshal([]byte(r.BackupCodes), &cfg.BackupCodes); err != nil {
			return authflow.MFAConfig{}, fmt.Errorf("decode backup codes: %w", err)
		}
	}
	return cfg, nil
}

func encodeHashes(hashes []string) (string, error) {
	if hashes == nil {
		hashes = []string{}
	}
	b, err := json.Marshal(hashes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const mfaSelect = `SELECT m.user_id, m.is_enabled, COALESCE(mm.name, '') AS method, m.otp_secret,
	m.backup_codes, m.version, m.created_at, m.updated_at
	FROM user_mfa m LEFT JOIN mfa_methods mm ON mm.id = m.default_method_id
	WHERE m.user_id = ?`

// MFAConfig loads the config of userID. A default method whose catalog row
// was deleted comes back as MFAMethodNone.
func (s *Store) MFAConfig(ctx context.Context, userID string) (authflow.MFAConfig, error) {
	var row mfaRow
	if err := s.db.GetContext(ctx, &row, s.rebind(mfaSelect), userID); err != nil {
		return authflow.MFAConfig{}, notFound(err)
	}
	return row.config()
}

// EnsureMFAConfig creates a disabled config when none exists and returns the stored one.
func (s *Store) EnsureMFAConfig(ctx context.Context, userID string, now time.Time) (authflow.MFAConfig, error) {
	q := s.rebind(`INSERT INTO user_mfa (user_id, is_enabled, otp_secret, backup_codes, version, created_at, updated_at)
		VALUES (?, FALSE, '', '[]', 0, ?, ?) ON CONFLICT (user_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, userID, utc(now), utc(now)); err != nil {
		return authflow.MFAConfig{}, err
	}
	return s.MFAConfig(ctx, userID)
}

// SetOTPSecret writes secret and backupHashes only while no secret is stored.
func (s *Store) SetOTPSecret(ctx context.Context, userID, secret string, backupHashes []string, now time.Time) (bool, error) {
	encoded, err := encodeHashes(backupHashes)
	if err != nil {
		return false, err
	}
	q := s.rebind(`UPDATE user_mfa SET otp_secret = ?, backup_codes = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND otp_secret = ''`)
	res, err := s.db.ExecContext(ctx, q, secret, encoded, utc(now), userID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetDefaultMethod points the config at the catalog row for method and bumps
// the version.
func (s *Store) SetDefaultMethod(ctx context.Context, userID string, method authflow.MFAMethod, now time.Time) error {
	q := s.rebind(`UPDATE user_mfa SET default_method_id = (SELECT id FROM mfa_methods WHERE name = ?),
		version = version + 1, updated_at = ? WHERE user_id = ?`)
	return requireRow(s.db.ExecContext(ctx, q, method.String(), utc(now), userID))
}

// EnableMFA marks the config enabled and bumps the version.
func (s *Store) EnableMFA(ctx context.Context, userID string, now time.Time) error {
	q := s.rebind(`UPDATE user_mfa SET is_enabled = TRUE, version = version + 1, updated_at = ? WHERE user_id = ?`)
	return requireRow(s.db.ExecContext(ctx, q, utc(now), userID))
}

// ReplaceBackupCodes is a compare-and-swap on user_mfa.version.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string, expectedVersion int64, now time.Time) (bool, error) {
	encoded, err := encodeHashes(hashes)
	if err != nil {
		return false, err
	}
	q := s.rebind(`UPDATE user_mfa SET backup_codes = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, q, encoded, utc(now), userID, expectedVersion)
	if err != nil {
		return false, err
	}
	return affected(res)
}

type methodRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

// MFAMethods lists the catalog ordered by id. Rows with names the engine does
// not know are skipped.
func (s *Store) MFAMethods(ctx context.Context, activeOnly bool) ([]authflow.MFAMethodInfo, error) {
	q := `SELECT id, name, is_active FROM mfa_methods`
	if activeOnly {
		q += ` WHERE is_active = TRUE`
	}
	q += ` ORDER BY id`

	var rows []methodRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	out := make([]authflow.MFAMethodInfo, 0, len(rows))
	for _, r := range rows {
		method, err := authflow.ParseMFAMethod(r.Name)
		if err != nil {
			continue
		}
		out = append(out, authflow.MFAMethodInfo{ID: r.ID, Method: method, IsActive: r.IsActive})
	}
	return out, nil
}

// SetMethodActive toggles a catalog entry.
func (s *Store) SetMethodActive(ctx context.Context, method authflow.MFAMethod, active bool) error {
	q := s.rebind(`UPDATE mfa_methods SET is_active = ? WHERE name = ?`)
	return requireRow(s.db.ExecContext(ctx, q, active, method.String()))
}

// ReplaceMFAChallenge deletes the user's unverified challenges of ch.Method and inserts ch.
func (s *Store) ReplaceMFAChallenge(ctx context.Context, ch authflow.MFAChallenge) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		del := tx.Rebind(`DELETE FROM mfa_verifications WHERE user_id = ? AND method = ? AND is_verified = FALSE`)
		if _, err := tx.ExecContext(ctx, del, ch.UserID, ch.Method.String()); err != nil {
			return err
		}
		ins := tx.Rebind(`INSERT INTO mfa_verifications
			(id, user_id, method, code, session_key, is_verified, verified_at, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, ins,
			ch.ID, ch.UserID, ch.Method.String(), ch.Code, ch.SessionKey, ch.IsVerified,
			nullTime(ch.VerifiedAt), utc(ch.CreatedAt), utc(ch.ExpiresAt),
		)
		return err
	})
}

// VerifyMFAChallenge marks the matching challenge verified in one statement.
func (s *Store) VerifyMFAChallenge(ctx context.Context, userID string, method authflow.MFAMethod, code, sessionKey string, now time.Time) (bool, error) {
	q := s.rebind(`UPDATE mfa_verifications SET is_verified = TRUE, verified_at = ?
		WHERE user_id = ? AND method = ? AND code = ? AND session_key = ?
		AND is_verified = FALSE AND expires_at > ?`)
	res, err := s.db.ExecContext(ctx, q, sql.NullTime{Time: utc(now), Valid: true}, userID, method.String(), code, sessionKey, utc(now))
	if err != nil {
		return false, err
	}
	return affected(res)
}
