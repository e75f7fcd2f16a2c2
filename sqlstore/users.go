package sqlstore

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow"
)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	IsVerified   bool      `db:"is_verified"`
	HasMFA       bool      `db:"has_mfa"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) user() authflow.User {
	return authflow.User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		IsVerified:   r.IsVerified,
		HasMFA:       r.HasMFA,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const userColumns = `id, email, username, password_hash, is_verified, has_mfa, created_at, updated_at`

// CreateUser inserts u and maps unique violations to ErrDuplicateEmail or ErrDuplicateUsername.
func (s *Store) CreateUser(ctx context.Context, u authflow.User) error {
	q := s.rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.Email, u.Username, u.PasswordHash, u.IsVerified, u.HasMFA,
		utc(u.CreatedAt), utc(u.UpdatedAt),
	)
	if err != nil {
		return duplicateError(err)
	}
	return nil
}

// UserByID returns ErrRecordNotFound when no row matches.
func (s *Store) UserByID(ctx context.Context, id string) (authflow.User, error) {
	var row userRow
	q := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		return authflow.User{}, notFound(err)
	}
	return row.user(), nil
}

// UserByIdentifier matches the email case-insensitively or the username exactly.
func (s *Store) UserByIdentifier(ctx context.Context, identifier string) (authflow.User, error) {
	var row userRow
	q := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower(?) OR username = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &row, q, identifier, identifier); err != nil {
		return authflow.User{}, notFound(err)
	}
	return row.user(), nil
}

// EmailTaken compares case-insensitively.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	q := s.rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower(?))`)
	err := s.db.GetContext(ctx, &taken, q, email)
	return taken, err
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	q := s.rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`)
	err := s.db.GetContext(ctx, &taken, q, username)
	return taken, err
}

// MarkUserVerified, MarkUserHasMFA and UpdatePasswordHash return
// ErrRecordNotFound when the user row is missing.
func (s *Store) MarkUserVerified(ctx context.Context, userID string, now time.Time) error {
	q := s.rebind(`UPDATE users SET is_verified = TRUE, updated_at = ? WHERE id = ?`)
	return requireRow(s.db.ExecContext(ctx, q, utc(now), userID))
}

func (s *Store) MarkUserHasMFA(ctx context.Context, userID string, now time.Time) error {
	q := s.rebind(`UPDATE users SET has_mfa = TRUE, updated_at = ? WHERE id = ?`)
	return requireRow(s.db.ExecContext(ctx, q, utc(now), userID))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	q := s.rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	return requireRow(s.db.ExecContext(ctx, q, hash, utc(now), userID))
}
