package authflow

import (
	"context"
	"errors"

	"github.com/MrEthical07/authflow/internal"
)

var allPurposes = []Purpose{PurposeRegistration, PurposeLogin}

// IssueCode replaces the user's pending code of purpose with a fresh one and
// queues the email. The returned delivery is only meant for development echo.
func (e *Engine) IssueCode(ctx context.Context, user User, purpose Purpose) (CodeDelivery, error) {
	if err := e.ready(); err != nil {
		return CodeDelivery{}, err
	}
	return e.issueCode(ctx, user, purpose)
}

func (e *Engine) issueCode(ctx context.Context, user User, purpose Purpose) (CodeDelivery, error) {
	if !purpose.Valid() {
		return CodeDelivery{}, fieldError("type", "Unknown verification purpose.")
	}

	code, err := internal.NewNumericCode(e.config.Codes.Digits)
	if err != nil {
		return CodeDelivery{}, internalErr("generate code", err)
	}

	now := e.now()
	record := VerificationCode{
		ID:        internal.NewRecordID(),
		UserID:    user.ID,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.Codes.TTL),
	}
	if err := e.store.ReplaceCode(ctx, record); err != nil {
		return CodeDelivery{}, internalErr("store code", err)
	}
	e.metricInc(MetricCodeIssued)

	e.sendCode(user, string(purpose), code)

	return CodeDelivery{Code: code, ExpiresAt: record.ExpiresAt}, nil
}

// ConsumeCode marks the newest matching unused, unexpired code as used and
// returns its purpose. Without purposes, every purpose matches.
//
// A wrong code and an expired one both yield ErrInvalidOrExpiredCode.
func (e *Engine) ConsumeCode(ctx context.Context, userID, submitted string, purposes ...Purpose) (Purpose, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if len(purposes) == 0 {
		purposes = allPurposes
	}

	purpose, err := e.store.ConsumeCode(ctx, userID, submitted, purposes, e.now())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return "", ErrInvalidOrExpiredCode
		}
		return "", internalErr("consume code", err)
	}
	return purpose, nil
}

// PurgeCodes deletes every code of userID.
func (e *Engine) PurgeCodes(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.store.DeleteCodes(ctx, userID); err != nil {
		return internalErr("delete codes", err)
	}
	return nil
}
