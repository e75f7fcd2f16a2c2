package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 10 * time.Minute
)

var (
	// ErrLocked indicates the subject already used up its failure budget.
	ErrLocked = errors.New("too many failed attempts")
	// ErrUnavailable indicates the Redis backend could not be reached.
	ErrUnavailable = errors.New("attempt limiter unavailable")
)

// Scope namespaces counters so code, MFA and login failures are budgeted apart.
type Scope string

const (
	ScopeCode  Scope = "code"
	ScopeMFA   Scope = "mfa"
	ScopeLogin Scope = "login"
)

// Config holds the failure budget. Zero values fall back to 5 attempts per 10 minutes.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// AttemptLimiter counts failed verification attempts in a fixed window.
//
// A nil *AttemptLimiter is valid and never limits.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	window      time.Duration
	prefix      string
}

// NewAttemptLimiter returns nil when redisClient is nil.
func NewAttemptLimiter(redisClient redis.UniversalClient, cfg Config) *AttemptLimiter {
	if redisClient == nil {
		return nil
	}
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "af"
	}
	return &AttemptLimiter{redis: redisClient, maxAttempts: int64(max), window: window, prefix: prefix}
}

func (l *AttemptLimiter) key(scope Scope, subject string) string {
	return l.prefix + ":att:" + string(scope) + ":" + subject
}

// Check returns ErrLocked once the subject reached the failure budget.
func (l *AttemptLimiter) Check(ctx context.Context, scope Scope, subject string) error {
	if l == nil || subject == "" {
		return nil
	}

	count, err := l.redis.Get(ctx, l.key(scope, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrLocked
	}
	return nil
}

// RecordFailure increments the counter, starting the window on the first failure.
// It returns ErrLocked when this failure exhausted the budget.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, scope Scope, subject string) error {
	if l == nil || subject == "" {
		return nil
	}

	key := l.key(scope, subject)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrLocked
	}
	return nil
}

// Reset clears the counter after a successful verification.
func (l *AttemptLimiter) Reset(ctx context.Context, scope Scope, subject string) error {
	if l == nil || subject == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(scope, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Failures returns the current count for subject.
func (l *AttemptLimiter) Failures(ctx context.Context, scope Scope, subject string) (int, error) {
	if l == nil || subject == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(scope, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}
