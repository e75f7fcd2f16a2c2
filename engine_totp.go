package authflow

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/otp"
	"go.uber.org/zap"
)

const totpCodeLength = 6

// EnrollOTP returns the authenticator provisioning material for user,
// creating the secret on first call.
//
// An existing secret is reused. Backup codes are stored as digests and cannot
// be shown again, so every call issues a fresh set and invalidates the last.
// When enrollments race, the set stored last wins.
func (e *Engine) EnrollOTP(ctx context.Context, user User) (OTPEnrollment, error) {
	if err := e.ready(); err != nil {
		return OTPEnrollment{}, err
	}

	now := e.now()
	cfg, err := e.store.EnsureMFAConfig(ctx, user.ID, now)
	if err != nil {
		return OTPEnrollment{}, internalErr("load mfa config", err)
	}
	codes, err := otp.NewBackupCodes(e.config.MFA.BackupCodeCount, e.config.MFA.BackupCodeLength)
	if err != nil {
		return OTPEnrollment{}, internalErr("generate backup codes", err)
	}
	if cfg.OTPSecret != "" {
		return e.reenroll(ctx, user, cfg, codes)
	}

	key, err := e.totp.Generate(user.Email)
	if err != nil {
		return OTPEnrollment{}, internalErr("generate otp secret", err)
	}

	applied, err := e.store.SetOTPSecret(ctx, user.ID, key.Secret, otp.HashBackupCodes(user.ID, codes), now)
	if err != nil {
		return OTPEnrollment{}, internalErr("store otp secret", err)
	}
	if !applied {
		// A concurrent enrollment stored its secret first.
		cfg, err = e.store.MFAConfig(ctx, user.ID)
		if err != nil {
			return OTPEnrollment{}, internalErr("reload mfa config", err)
		}
		return e.reenroll(ctx, user, cfg, codes)
	}

	return OTPEnrollment{
		Secret:          key.Secret,
		ProvisioningURI: key.URI,
		QRCode:          key.QRCode,
		BackupCodes:     codes,
	}, nil
}

// reenroll keeps the stored secret and swaps in codes as the new backup set,
// retrying the version check like consumeBackupCode does.
func (e *Engine) reenroll(ctx context.Context, user User, cfg MFAConfig, codes []string) (OTPEnrollment, error) {
	key, err := e.totp.FromSecret(user.Email, cfg.OTPSecret)
	if err != nil {
		return OTPEnrollment{}, internalErr("rebuild otp key", err)
	}
	hashes := otp.HashBackupCodes(user.ID, codes)

	for attempt := 0; attempt < e.config.MFA.BackupCodeRetries; attempt++ {
		ok, err := e.store.ReplaceBackupCodes(ctx, user.ID, hashes, cfg.Version, e.now())
		if err != nil {
			return OTPEnrollment{}, internalErr("replace backup codes", err)
		}
		if ok {
			e.logger.Info("backup codes regenerated", zap.String("user_id", user.ID))
			return OTPEnrollment{
				Secret:          key.Secret,
				ProvisioningURI: key.URI,
				QRCode:          key.QRCode,
				BackupCodes:     codes,
			}, nil
		}

		cfg, err = e.store.MFAConfig(ctx, user.ID)
		if err != nil {
			return OTPEnrollment{}, internalErr("reload mfa config", err)
		}
	}

	return OTPEnrollment{}, fmt.Errorf("%w: backup code regeneration kept conflicting", ErrInternal)
}

// VerifyOTP checks code against cfg. Length alone decides the kind: a
// backup-code-length code consumes a backup code, a six character code is
// checked as TOTP and anything else fails.
func (e *Engine) VerifyOTP(ctx context.Context, cfg MFAConfig, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	switch len(code) {
	case e.config.MFA.BackupCodeLength:
		return e.consumeBackupCode(ctx, cfg, code)
	case totpCodeLength:
		return e.totp.Validate(code, cfg.OTPSecret, e.now()), nil
	default:
		return false, nil
	}
}

// consumeBackupCode removes code from cfg under optimistic concurrency. When
// another writer bumped the version first, the config is reloaded and the
// removal retried, so a code already taken by the other writer fails.
func (e *Engine) consumeBackupCode(ctx context.Context, cfg MFAConfig, code string) (bool, error) {
	target := otp.HashBackupCode(cfg.UserID, code)

	for attempt := 0; attempt < e.config.MFA.BackupCodeRetries; attempt++ {
		remaining, found := otp.RemoveHash(cfg.BackupCodes, target)
		if !found {
			return false, nil
		}

		ok, err := e.store.ReplaceBackupCodes(ctx, cfg.UserID, remaining, cfg.Version, e.now())
		if err != nil {
			return false, internalErr("update backup codes", err)
		}
		if ok {
			e.metricInc(MetricBackupCodeUsed)
			e.logger.Info("backup code used",
				zap.String("user_id", cfg.UserID),
				zap.Int("remaining", len(remaining)),
			)
			return true, nil
		}

		cfg, err = e.store.MFAConfig(ctx, cfg.UserID)
		if err != nil {
			return false, internalErr("reload mfa config", err)
		}
	}

	return false, fmt.Errorf("%w: backup code update kept conflicting", ErrInternal)
}

// issueMFAChallenge replaces the user's pending email challenge with a new
// code bound to sessionKey and queues the email.
func (e *Engine) issueMFAChallenge(ctx context.Context, user User, sessionKey string) (CodeDelivery, error) {
	code, err := internal.NewNumericCode(e.config.Codes.Digits)
	if err != nil {
		return CodeDelivery{}, internalErr("generate code", err)
	}

	now := e.now()
	ch := MFAChallenge{
		ID:         internal.NewRecordID(),
		UserID:     user.ID,
		Method:     MFAMethodEmail,
		Code:       code,
		SessionKey: sessionKey,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.config.Codes.TTL),
	}
	if err := e.store.ReplaceMFAChallenge(ctx, ch); err != nil {
		return CodeDelivery{}, internalErr("store mfa challenge", err)
	}

	e.sendCode(user, "mfa", code)

	return CodeDelivery{Code: code, ExpiresAt: ch.ExpiresAt}, nil
}

func (e *Engine) verifyMFAChallenge(ctx context.Context, userID, code, sessionKey string) (bool, error) {
	if len(code) != e.config.Codes.Digits {
		return false, nil
	}
	ok, err := e.store.VerifyMFAChallenge(ctx, userID, MFAMethodEmail, code, sessionKey, e.now())
	if err != nil {
		return false, internalErr("verify mfa challenge", err)
	}
	return ok, nil
}

func setupSessionKey(userID string) string {
	return "mfa_setup_" + userID
}
