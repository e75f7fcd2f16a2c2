// Package sqlstore implements authflow.Store on a relational database through
// sqlx.
//
// Two drivers are supported: "postgres" (lib/pq) for deployments and
// "sqlite" (modernc.org/sqlite) for development and tests. Queries are written
// once with '?' placeholders and rebound for the driver.
//
// Every single-use guarantee of the engine maps to one conditional statement:
//
//   - ConsumeCode and VerifyMFAChallenge mark a row used with an UPDATE that
//     re-checks the unused flag, so concurrent callers cannot both succeed.
//   - SetOTPSecret only writes when no secret is stored.
//   - ReplaceBackupCodes compares and increments user_mfa.version.
//
// EnsureSchema creates the tables and seeds the MFA method catalog. It is
// idempotent and is what `authd migrate` runs.
package sqlstore
