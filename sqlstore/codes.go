package sqlstore

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/jmoiron/sqlx"
)

type codeRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Code      string    `db:"code"`
	Purpose   string    `db:"purpose"`
	IsUsed    bool      `db:"is_used"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (r codeRow) code() authflow.VerificationCode {
	return authflow.VerificationCode{
		ID:        r.ID,
		UserID:    r.UserID,
		Code:      r.Code,
		Purpose:   authflow.Purpose(r.Purpose),
		IsUsed:    r.IsUsed,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
}

// ReplaceCode deletes the user's unused codes of c.Purpose and inserts c.
func (s *Store) ReplaceCode(ctx context.Context, c authflow.VerificationCode) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		del := tx.Rebind(`DELETE FROM verification_codes WHERE user_id = ? AND purpose = ? AND is_used = FALSE`)
		if _, err := tx.ExecContext(ctx, del, c.UserID, string(c.Purpose)); err != nil {
			return err
		}
		ins := tx.Rebind(`INSERT INTO verification_codes (id, user_id, code, purpose, is_used, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, ins, c.ID, c.UserID, c.Code, string(c.Purpose), c.IsUsed, utc(c.CreatedAt), utc(c.ExpiresAt))
		return err
	})
}

// ConsumeCode marks the newest matching code used in one statement. The outer
// is_used check makes a concurrent second consumer update nothing.
func (s *Store) ConsumeCode(ctx context.Context, userID, code string, purposes []authflow.Purpose, now time.Time) (authflow.Purpose, error) {
	if len(purposes) == 0 {
		return "", authflow.ErrRecordNotFound
	}
	names := make([]string, len(purposes))
	for i, p := range purposes {
		names[i] = string(p)
	}

	q, args, err := sqlx.In(`UPDATE verification_codes SET is_used = TRUE
		WHERE id = (
			SELECT id FROM verification_codes
			WHERE user_id = ? AND code = ? AND is_used = FALSE AND expires_at > ? AND purpose IN (?)
			ORDER BY created_at DESC LIMIT 1
		) AND is_used = FALSE
		RETURNING purpose`, userID, code, utc(now), names)
	if err != nil {
		return "", err
	}

	var purpose string
	if err := s.db.QueryRowxContext(ctx, s.rebind(q), args...).Scan(&purpose); err != nil {
		return "", notFound(err)
	}
	return authflow.Purpose(purpose), nil
}

// LatestPendingCode returns the newest unused code regardless of expiry.
func (s *Store) LatestPendingCode(ctx context.Context, userID string) (authflow.VerificationCode, error) {
	var row codeRow
	q := s.rebind(`SELECT id, user_id, code, purpose, is_used, created_at, expires_at
		FROM verification_codes WHERE user_id = ? AND is_used = FALSE
		ORDER BY created_at DESC LIMIT 1`)
	if err := s.db.GetContext(ctx, &row, q, userID); err != nil {
		return authflow.VerificationCode{}, notFound(err)
	}
	return row.code(), nil
}

// DeleteCodes removes every verification code of userID, used or not.
func (s *Store) DeleteCodes(ctx context.Context, userID string) error {
	q := s.rebind(`DELETE FROM verification_codes WHERE user_id = ?`)
	_, err := s.db.ExecContext(ctx, q, userID)
	return err
}
