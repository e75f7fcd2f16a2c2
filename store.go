package authflow

import (
	"context"
	"time"
)

// Store is the relational persistence the engine runs on.
//
// Implementations must be safe for concurrent use. Lookups that match no row
// return ErrRecordNotFound. The conditional operations (ConsumeCode,
// VerifyMFAChallenge, SetOTPSecret, ReplaceBackupCodes) must each be a single
// atomic statement or transaction; the engine relies on them for every
// single-use guarantee it makes.
type Store interface {
	UserStore
	TokenStore
	CodeStore
	MFAStore
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts u. It returns ErrDuplicateEmail or ErrDuplicateUsername on a unique violation.
	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (User, error)
	// UserByIdentifier matches the email case-insensitively or the username exactly.
	UserByIdentifier(ctx context.Context, identifier string) (User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	MarkUserVerified(ctx context.Context, userID string, now time.Time) error
	MarkUserHasMFA(ctx context.Context, userID string, now time.Time) error
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error
}

// TokenStore persists session token records keyed by the token digest.
type TokenStore interface {
	CreateToken(ctx context.Context, t Token) error
	// ValidToken returns the record for tokenHash when it is valid and expires after now.
	ValidToken(ctx context.Context, tokenHash string, now time.Time) (Token, error)
	TouchToken(ctx context.Context, id string, now time.Time) error
	// RevokeToken clears is_valid on the user's record for tokenHash. Revoking twice is not an error.
	RevokeToken(ctx context.Context, userID, tokenHash string) error
}

// CodeStore persists email verification codes.
type CodeStore interface {
	// ReplaceCode deletes the user's unused codes of c.Purpose and inserts c in one transaction.
	ReplaceCode(ctx context.Context, c VerificationCode) error
	// ConsumeCode marks the newest unused, unexpired code equal to code with one of
	// purposes as used and returns its purpose.
	ConsumeCode(ctx context.Context, userID, code string, purposes []Purpose, now time.Time) (Purpose, error)
	// LatestPendingCode returns the newest unused code of any purpose.
	LatestPendingCode(ctx context.Context, userID string) (VerificationCode, error)
	DeleteCodes(ctx context.Context, userID string) error
}

// MFAStore persists MFA configs, the method catalog and email challenges.
type MFAStore interface {
	MFAConfig(ctx context.Context, userID string) (MFAConfig, error)
	// EnsureMFAConfig returns the existing config or creates a disabled one.
	EnsureMFAConfig(ctx context.Context, userID string, now time.Time) (MFAConfig, error)
	// SetOTPSecret stores secret and backupHashes only if the config has no
	// secret yet. It reports whether the write happened.
	SetOTPSecret(ctx context.Context, userID, secret string, backupHashes []string, now time.Time) (bool, error)
	SetDefaultMethod(ctx context.Context, userID string, method MFAMethod, now time.Time) error
	EnableMFA(ctx context.Context, userID string, now time.Time) error
	// ReplaceBackupCodes writes hashes if the stored version still equals
	// expectedVersion, incrementing it. It reports whether the write happened.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string, expectedVersion int64, now time.Time) (bool, error)

	MFAMethods(ctx context.Context, activeOnly bool) ([]MFAMethodInfo, error)
	// ReplaceMFAChallenge deletes the user's unverified challenges of ch.Method and inserts ch.
	ReplaceMFAChallenge(ctx context.Context, ch MFAChallenge) error
	// VerifyMFAChallenge marks the matching unverified, unexpired challenge as
	// verified. It reports whether a row was updated.
	VerifyMFAChallenge(ctx context.Context, userID string, method MFAMethod, code, sessionKey string, now time.Time) (bool, error)
}
