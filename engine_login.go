package authflow

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authflow/internal/limiters"
	"go.uber.org/zap"
)

// Login authenticates an email or username with a password.
//
// An unverified user gets a temporary token, a fresh login code and an
// email-verification challenge. A user with MFA enabled gets a temporary token
// and an MFA challenge; for the email method a challenge code bound to that
// token is sent as well. Everyone else gets a permanent token.
//
// Unknown identifiers and wrong passwords both return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}

	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := e.validator.Struct(in); err != nil {
		return AuthResult{}, err
	}

	identifier := in.Identifier()
	subject := strings.ToLower(identifier)
	if err := e.checkAttempts(ctx, limiters.ScopeLogin, subject); err != nil {
		return AuthResult{}, err
	}

	user, err := e.store.UserByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return AuthResult{}, internalErr("load user", err)
		}
		e.passwordHash.VerifyDummy(in.Password)
		return AuthResult{}, e.loginFailed(ctx, subject)
	}

	ok, err := e.passwordHash.Verify(in.Password, user.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return AuthResult{}, e.loginFailed(ctx, subject)
	}
	if !ok {
		return AuthResult{}, e.loginFailed(ctx, subject)
	}
	e.resetAttempts(ctx, limiters.ScopeLogin, subject)
	e.upgradePasswordHash(ctx, user, in.Password)

	if !user.IsVerified {
		token, err := e.issueToken(ctx, user, true)
		if err != nil {
			return AuthResult{}, err
		}
		delivery, err := e.issueCode(ctx, user, PurposeLogin)
		if err != nil {
			return AuthResult{}, err
		}
		e.metricInc(MetricLoginChallenged)
		return AuthResult{
			User: user,
			Challenge: &Challenge{
				Kind:     ChallengeEmailVerification,
				Token:    token,
				Delivery: &delivery,
			},
		}, nil
	}

	cfg, err := e.store.MFAConfig(ctx, user.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecordNotFound):
		cfg = MFAConfig{}
	default:
		return AuthResult{}, internalErr("load mfa config", err)
	}

	if cfg.IsEnabled {
		method := challengeMethod(cfg)
		if method == MFAMethodNone {
			// Never fall through to a permanent token once MFA is on.
			e.logger.Error("mfa enabled without a usable method", zap.String("user_id", user.ID))
			return AuthResult{}, ErrMFANotConfigured
		}

		token, err := e.issueToken(ctx, user, true)
		if err != nil {
			return AuthResult{}, err
		}
		ch := &Challenge{Kind: ChallengeMFA, Method: method, Token: token}
		if method == MFAMethodEmail {
			delivery, err := e.issueMFAChallenge(ctx, user, hashToken(token))
			if err != nil {
				return AuthResult{}, err
			}
			ch.Delivery = &delivery
		}
		e.metricInc(MetricLoginChallenged)
		return AuthResult{User: user, Challenge: ch}, nil
	}

	token, err := e.issueToken(ctx, user, false)
	if err != nil {
		return AuthResult{}, err
	}
	e.metricInc(MetricLoginSuccess)
	e.logger.Info("login succeeded", zap.String("user_id", user.ID))

	return AuthResult{User: user, Token: token}, nil
}

func (e *Engine) loginFailed(ctx context.Context, subject string) error {
	e.recordFailure(ctx, limiters.ScopeLogin, subject)
	e.metricInc(MetricLoginFailure)
	return ErrInvalidCredentials
}

// upgradePasswordHash rehashes with the current parameters when the stored
// hash was produced with weaker ones. Failures are logged only.
func (e *Engine) upgradePasswordHash(ctx context.Context, user User, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.passwordHash.Hash(plain)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, user.ID, hash, e.now()); err != nil {
		e.logger.Warn("password hash upgrade not stored", zap.String("user_id", user.ID), zap.Error(err))
	}
}
