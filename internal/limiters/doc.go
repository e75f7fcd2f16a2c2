// Package limiters provides the Redis-backed failed-attempt limiter used for
// verification codes, MFA codes and logins.
//
// Counters are fixed windows: INCR on each failure, EXPIRE set on the first.
// A nil [AttemptLimiter] never limits, which is how the engine runs without
// Redis.
package limiters
