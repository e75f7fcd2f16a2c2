package authflow

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authflow/internal/limiters"
	"go.uber.org/zap"
)

const msgInvalidMethod = "Select a valid choice. That choice is not one of the available choices."

// GetMFAConfig returns the MFA status of the session user. A user that never
// configured MFA gets the zero MFAStatus.
func (e *Engine) GetMFAConfig(ctx context.Context, s *Session) (MFAStatus, error) {
	if err := e.ready(); err != nil {
		return MFAStatus{}, err
	}
	if err := requirePermanent(s); err != nil {
		return MFAStatus{}, err
	}

	cfg, err := e.store.MFAConfig(ctx, s.User.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return MFAStatus{}, nil
		}
		return MFAStatus{}, internalErr("load mfa config", err)
	}
	return MFAStatus{IsEnabled: cfg.IsEnabled, DefaultMethod: cfg.DefaultMethod}, nil
}

// ConfigureMFA selects method as the user's second factor and starts its
// enrollment. OTP returns the provisioning material; email sends a setup
// code. MFA stays disabled until VerifyMFA confirms the method.
func (e *Engine) ConfigureMFA(ctx context.Context, s *Session, methodName string) (MFASetup, error) {
	if err := e.ready(); err != nil {
		return MFASetup{}, err
	}
	if err := requirePermanent(s); err != nil {
		return MFASetup{}, err
	}

	methodName = strings.TrimSpace(methodName)
	if err := e.validator.Var("default_method", methodName, "required"); err != nil {
		return MFASetup{}, err
	}
	method, err := e.activeMethod(ctx, methodName)
	if err != nil {
		return MFASetup{}, err
	}

	user := s.User
	now := e.now()
	if _, err := e.store.EnsureMFAConfig(ctx, user.ID, now); err != nil {
		return MFASetup{}, internalErr("create mfa config", err)
	}

	setup := MFASetup{Method: method}
	switch method {
	case MFAMethodOTP:
		enrollment, err := e.EnrollOTP(ctx, user)
		if err != nil {
			return MFASetup{}, err
		}
		setup.OTP = &enrollment
	case MFAMethodEmail:
		delivery, err := e.issueMFAChallenge(ctx, user, setupSessionKey(user.ID))
		if err != nil {
			return MFASetup{}, err
		}
		setup.Email = &delivery
	default:
		return MFASetup{}, fieldError("default_method", msgInvalidMethod)
	}

	if err := e.store.SetDefaultMethod(ctx, user.ID, method, now); err != nil {
		return MFASetup{}, internalErr("set default method", err)
	}
	if err := e.store.MarkUserHasMFA(ctx, user.ID, now); err != nil {
		return MFASetup{}, internalErr("mark has_mfa", err)
	}

	e.logger.Info("mfa configured", zap.String("user_id", user.ID), zap.Stringer("method", method))

	return setup, nil
}

func (e *Engine) activeMethod(ctx context.Context, name string) (MFAMethod, error) {
	method, err := ParseMFAMethod(name)
	if err != nil {
		return MFAMethodNone, fieldError("default_method", msgInvalidMethod)
	}

	active, err := e.store.MFAMethods(ctx, true)
	if err != nil {
		return MFAMethodNone, internalErr("list mfa methods", err)
	}
	for _, m := range active {
		if m.Method == method {
			return method, nil
		}
	}
	return MFAMethodNone, fieldError("default_method", msgInvalidMethod)
}

// VerifyMFA checks a second factor and escalates the session.
//
// During login the session carries the temporary token issued by Login. While
// a method is being enrolled (configured but not yet enabled) the permanent
// token that configured it is accepted too; once MFA is enabled a permanent
// token is rejected with ErrInvalidTokenType.
//
// OTP accepts a TOTP code or a backup code; email accepts the challenge code
// bound to the session. Success enables MFA and returns a permanent token.
func (e *Engine) VerifyMFA(ctx context.Context, s *Session, code string) (VerifyResult, error) {
	if err := e.ready(); err != nil {
		return VerifyResult{}, err
	}
	if s == nil {
		return VerifyResult{}, ErrUnauthorized
	}

	code = strings.TrimSpace(code)
	if err := e.validator.Var("code", code, "required,min=6,max=8"); err != nil {
		return VerifyResult{}, err
	}

	userID := s.User.ID
	cfg, err := e.store.MFAConfig(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return VerifyResult{}, ErrMFANotConfigured
		}
		return VerifyResult{}, internalErr("load mfa config", err)
	}
	method := challengeMethod(cfg)
	if method == MFAMethodNone {
		return VerifyResult{}, ErrMFANotConfigured
	}
	if !s.Token.IsTemporary && cfg.IsEnabled {
		return VerifyResult{}, ErrInvalidTokenType
	}

	if err := e.checkAttempts(ctx, limiters.ScopeMFA, userID); err != nil {
		return VerifyResult{}, err
	}

	var verified bool
	switch method {
	case MFAMethodOTP:
		verified, err = e.VerifyOTP(ctx, cfg, code)
	case MFAMethodEmail:
		sessionKey := setupSessionKey(userID)
		if cfg.IsEnabled {
			sessionKey = hashToken(s.Raw)
		}
		verified, err = e.verifyMFAChallenge(ctx, userID, code, sessionKey)
	default:
		return VerifyResult{}, ErrMFANotConfigured
	}
	if err != nil {
		return VerifyResult{}, err
	}
	if !verified {
		e.recordFailure(ctx, limiters.ScopeMFA, userID)
		e.metricInc(MetricMFAFailure)
		return VerifyResult{}, ErrInvalidCode
	}
	e.resetAttempts(ctx, limiters.ScopeMFA, userID)

	if !cfg.IsEnabled {
		if err := e.store.EnableMFA(ctx, userID, e.now()); err != nil {
			return VerifyResult{}, internalErr("enable mfa", err)
		}
		e.logger.Info("mfa enabled", zap.String("user_id", userID), zap.Stringer("method", method))
	}

	token, err := e.escalate(ctx, s)
	if err != nil {
		return VerifyResult{}, err
	}

	e.metricInc(MetricMFASuccess)
	return VerifyResult{User: s.User, Token: token}, nil
}

// challengeMethod is the factor a challenge for cfg must use. An enabled
// config whose catalog reference was cleared keeps using OTP when it holds a
// secret; otherwise it has no usable method.
func challengeMethod(cfg MFAConfig) MFAMethod {
	if cfg.DefaultMethod != MFAMethodNone {
		return cfg.DefaultMethod
	}
	if cfg.IsEnabled && cfg.OTPSecret != "" {
		return MFAMethodOTP
	}
	return MFAMethodNone
}

// ListMFAMethods returns the active entries of the method catalog.
func (e *Engine) ListMFAMethods(ctx context.Context) ([]MFAMethodInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	methods, err := e.store.MFAMethods(ctx, true)
	if err != nil {
		return nil, internalErr("list mfa methods", err)
	}
	return methods, nil
}
