package authflow

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authflow/internal/limiters"
	"go.uber.org/zap"
)

// VerifyCode consumes an emailed verification code with the temporary token
// it was issued alongside.
//
// On success the user is marked verified, a permanent token is issued, the
// temporary token is revoked and every remaining code of the user is deleted.
func (e *Engine) VerifyCode(ctx context.Context, s *Session, code string) (VerifyResult, error) {
	if err := e.ready(); err != nil {
		return VerifyResult{}, err
	}
	if err := requireTemporary(s); err != nil {
		return VerifyResult{}, err
	}

	code = strings.TrimSpace(code)
	if err := e.validator.Var("code", code, "required,len=6,number"); err != nil {
		return VerifyResult{}, err
	}

	userID := s.User.ID
	if err := e.checkAttempts(ctx, limiters.ScopeCode, userID); err != nil {
		return VerifyResult{}, err
	}

	if _, err := e.ConsumeCode(ctx, userID, code); err != nil {
		if errors.Is(err, ErrInvalidOrExpiredCode) {
			e.recordFailure(ctx, limiters.ScopeCode, userID)
			e.metricInc(MetricCodeVerifyFailure)
		}
		return VerifyResult{}, err
	}
	e.resetAttempts(ctx, limiters.ScopeCode, userID)

	user := s.User
	if !user.IsVerified {
		now := e.now()
		if err := e.store.MarkUserVerified(ctx, userID, now); err != nil {
			return VerifyResult{}, internalErr("mark verified", err)
		}
		user.IsVerified = true
		user.UpdatedAt = now
	}

	token, err := e.escalate(ctx, &Session{User: user, Token: s.Token, Raw: s.Raw})
	if err != nil {
		return VerifyResult{}, err
	}

	if err := e.store.DeleteCodes(ctx, userID); err != nil {
		e.logger.Warn("verification code cleanup failed", zap.String("user_id", userID), zap.Error(err))
	}

	e.metricInc(MetricCodeVerifySuccess)
	e.logger.Info("email verified", zap.String("user_id", userID))

	return VerifyResult{User: user, Token: token}, nil
}

// ResendCode supersedes the newest pending code with a fresh one of the same
// purpose. It returns ErrNoPendingVerification when nothing is pending.
func (e *Engine) ResendCode(ctx context.Context, s *Session) (ResendResult, error) {
	if err := e.ready(); err != nil {
		return ResendResult{}, err
	}
	if err := requireTemporary(s); err != nil {
		return ResendResult{}, err
	}

	pending, err := e.store.LatestPendingCode(ctx, s.User.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ResendResult{}, ErrNoPendingVerification
		}
		return ResendResult{}, internalErr("load pending code", err)
	}

	delivery, err := e.issueCode(ctx, s.User, pending.Purpose)
	if err != nil {
		return ResendResult{}, err
	}

	return ResendResult{Purpose: pending.Purpose, Delivery: delivery}, nil
}
