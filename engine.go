package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/otp"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/mailer"
	"github.com/MrEthical07/authflow/password"
	"go.uber.org/zap"
)

// Engine runs the authentication state machine.
//
// An Engine is built once with [Builder.Build] and is safe for concurrent use.
// It keeps no per-request state; every guarantee is enforced by the Store.
type Engine struct {
	config       Config
	store        Store
	jwtManager   *jwt.Manager
	passwordHash *password.Argon2
	totp         *otp.Manager
	limiter      *limiters.AttemptLimiter
	mail         *mailer.Dispatcher
	metrics      *Metrics
	validator    *inputValidator
	logger       *zap.Logger
	now          func() time.Time
}

// Close stops the mail dispatcher after draining queued messages.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mail != nil {
		e.mail.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// MailDropped reports how many emails were dropped because the queue was full.
func (e *Engine) MailDropped() uint64 {
	if e == nil || e.mail == nil {
		return 0
	}
	return e.mail.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.jwtManager == nil || e.passwordHash == nil || e.totp == nil {
		return ErrEngineNotReady
	}
	return nil
}

func internalErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}

/*
====================================
ATTEMPT LIMITER
====================================
*/

func (e *Engine) checkAttempts(ctx context.Context, scope limiters.Scope, subject string) error {
	err := e.limiter.Check(ctx, scope, subject)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrLocked):
		e.metricInc(MetricAttemptsLocked)
		e.logger.Warn("attempts locked", zap.String("scope", string(scope)), zap.String("subject", subject))
		return ErrTooManyAttempts
	default:
		e.logger.Error("attempt limiter check failed", zap.String("scope", string(scope)), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
}

func (e *Engine) recordFailure(ctx context.Context, scope limiters.Scope, subject string) {
	err := e.limiter.RecordFailure(ctx, scope, subject)
	if err == nil || errors.Is(err, limiters.ErrLocked) {
		return
	}
	e.logger.Warn("attempt limiter record failed", zap.String("scope", string(scope)), zap.Error(err))
}

func (e *Engine) resetAttempts(ctx context.Context, scope limiters.Scope, subject string) {
	if err := e.limiter.Reset(ctx, scope, subject); err != nil {
		e.logger.Warn("attempt limiter reset failed", zap.String("scope", string(scope)), zap.Error(err))
	}
}

/*
====================================
MAIL
====================================
*/

func (e *Engine) sendCode(user User, kind, code string) {
	if e.mail == nil {
		return
	}
	msg := mailer.VerificationMessage(user.Email, user.ID, kind, code, e.config.Codes.TTL)
	if !e.mail.Enqueue(msg) {
		e.metricInc(MetricMailDropped)
		e.logger.Warn("verification email not queued", zap.String("user_id", user.ID), zap.String("kind", kind))
	}
}
