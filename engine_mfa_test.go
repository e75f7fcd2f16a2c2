package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const alicePassword = "correct-password-123"

// otpUser returns a verified user with OTP enrolled and enabled, plus the
// enrollment material.
func otpUser(t *testing.T, h *harness) (User, *OTPEnrollment) {
	t.Helper()
	user := h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)
	enrollment := h.enrollOTP(perm)

	if _, err := h.engine.VerifyMFA(context.Background(), perm, totpNow(t, enrollment.Secret)); err != nil {
		t.Fatalf("confirm enrollment failed: %v", err)
	}
	return user, enrollment
}

func mfaLogin(t *testing.T, h *harness) (AuthResult, *Session) {
	t.Helper()
	res, err := h.engine.Login(context.Background(), loginInput("alice", alicePassword))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Challenge == nil || res.Challenge.Kind != ChallengeMFA {
		t.Fatalf("expected mfa challenge, got %+v", res)
	}
	return res, h.session(res.Challenge.Token)
}

func TestGetMFAConfigDefaultsWhenUnconfigured(t *testing.T) {
	h := newHarness(t)
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)

	status, err := h.engine.GetMFAConfig(context.Background(), perm)
	if err != nil {
		t.Fatalf("get config failed: %v", err)
	}
	if status.IsEnabled || status.DefaultMethod != MFAMethodNone {
		t.Fatalf("expected zero status, got %+v", status)
	}
}

func TestConfigureOTPDoesNotEnableUntilVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)

	enrollment := h.enrollOTP(perm)
	if enrollment.Secret == "" || len(enrollment.BackupCodes) != 5 {
		t.Fatalf("unexpected enrollment: %+v", enrollment)
	}
	for _, code := range enrollment.BackupCodes {
		if len(code) != 8 || strings.Trim(code, "ABCDEFGHJKLMNPQRSTUVWXYZ23456789") != "" {
			t.Fatalf("unexpected backup code %q", code)
		}
	}
	if !strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/app:alice@example.com?") {
		t.Fatalf("unexpected provisioning uri %q", enrollment.ProvisioningURI)
	}
	if !strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,") {
		t.Fatalf("unexpected qr code prefix")
	}

	status, err := h.engine.GetMFAConfig(ctx, perm)
	if err != nil {
		t.Fatalf("get config failed: %v", err)
	}
	if status.IsEnabled || status.DefaultMethod != MFAMethodOTP {
		t.Fatalf("expected otp selected but disabled, got %+v", status)
	}
	stored, _ := h.store.UserByID(ctx, user.ID)
	if !stored.HasMFA {
		t.Fatalf("expected has_mfa to be set")
	}

	cfg, _ := h.store.MFAConfig(ctx, user.ID)
	for _, code := range enrollment.BackupCodes {
		for _, digest := range cfg.BackupCodes {
			if digest == code {
				t.Fatalf("backup codes must not be stored in plaintext")
			}
		}
	}

	// Not enabled yet: login still yields a permanent token.
	h.permanentSession("alice", alicePassword)

	if _, err := h.engine.VerifyMFA(ctx, perm, wrongCode(totpNow(t, enrollment.Secret))); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected bad code to fail, got %v", err)
	}
	status, _ = h.engine.GetMFAConfig(ctx, perm)
	if status.IsEnabled {
		t.Fatalf("bad code must not enable mfa")
	}

	res, err := h.engine.VerifyMFA(ctx, perm, totpNow(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if h.session(res.Token).Token.IsTemporary {
		t.Fatalf("expected permanent token")
	}
	status, _ = h.engine.GetMFAConfig(ctx, perm)
	if !status.IsEnabled {
		t.Fatalf("expected mfa to be enabled")
	}
}

func TestConfigureOTPReusesSecret(t *testing.T) {
	h := newHarness(t)
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)

	first := h.enrollOTP(perm)
	second := h.enrollOTP(perm)

	if first.Secret != second.Secret || first.ProvisioningURI != second.ProvisioningURI {
		t.Fatalf("expected secret to be reused")
	}
	if len(second.BackupCodes) != len(first.BackupCodes) || len(second.BackupCodes) == 0 {
		t.Fatalf("expected a fresh set of backup codes, got %d", len(second.BackupCodes))
	}

	ctx := context.Background()
	if _, err := h.engine.VerifyMFA(ctx, perm, first.BackupCodes[0]); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected replaced backup code to fail, got %v", err)
	}
	if _, err := h.engine.VerifyMFA(ctx, perm, second.BackupCodes[0]); err != nil {
		t.Fatalf("expected regenerated backup code to verify, got %v", err)
	}
}

func TestSwitchingBackToOTPReturnsUsableBackupCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)

	first := h.enrollOTP(perm)
	if _, err := h.engine.ConfigureMFA(ctx, perm, "email"); err != nil {
		t.Fatalf("configure email failed: %v", err)
	}
	again := h.enrollOTP(perm)

	if again.Secret != first.Secret {
		t.Fatalf("expected secret to survive the method switch")
	}
	if len(again.BackupCodes) == 0 {
		t.Fatalf("expected backup codes after switching back to otp")
	}

	res, err := h.engine.VerifyMFA(ctx, perm, again.BackupCodes[0])
	if err != nil {
		t.Fatalf("backup code from re-enrollment failed: %v", err)
	}
	if h.session(res.Token).Token.IsTemporary {
		t.Fatalf("expected permanent token")
	}
	status, _ := h.engine.GetMFAConfig(ctx, perm)
	if !status.IsEnabled || status.DefaultMethod != MFAMethodOTP {
		t.Fatalf("unexpected status after verify: %+v", status)
	}
}

func TestConcurrentEnrollmentConvergesOnOneSecret(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser("alice@example.com", "alice", alicePassword)

	// Below BackupCodeRetries so every regeneration lands.
	const n = 4
	secrets := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			enrollment, err := h.engine.EnrollOTP(context.Background(), user)
			if err != nil {
				t.Errorf("enroll failed: %v", err)
				return
			}
			secrets[i] = enrollment.Secret
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if secrets[i] != secrets[0] {
			t.Fatalf("enrollments diverged: %q vs %q", secrets[i], secrets[0])
		}
	}
}

func TestLoginWithOTPRequiresChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, enrollment := otpUser(t, h)

	res, temp := mfaLogin(t, h)
	if res.Token != "" || res.Challenge.Method != MFAMethodOTP || res.Challenge.Delivery != nil {
		t.Fatalf("unexpected otp challenge: %+v", res.Challenge)
	}
	if !temp.Token.IsTemporary {
		t.Fatalf("expected temporary challenge token")
	}

	verified, err := h.engine.VerifyMFA(ctx, temp, totpNow(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("verify mfa failed: %v", err)
	}
	if h.session(verified.Token).Token.IsTemporary {
		t.Fatalf("expected permanent token")
	}
	if _, err := h.engine.ValidateToken(ctx, temp.Raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected temporary token revoked, got %v", err)
	}
}

func TestVerifyMFARejectsPermanentTokenOnceEnabled(t *testing.T) {
	h := newHarness(t)
	_, enrollment := otpUser(t, h)

	_, temp := mfaLogin(t, h)
	verified, err := h.engine.VerifyMFA(context.Background(), temp, totpNow(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	_, err = h.engine.VerifyMFA(context.Background(), h.session(verified.Token), totpNow(t, enrollment.Secret))
	if !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("expected ErrInvalidTokenType, got %v", err)
	}
}

func TestVerifyMFAWithoutConfig(t *testing.T) {
	h := newHarness(t)
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)

	if _, err := h.engine.VerifyMFA(context.Background(), perm, "123456"); !errors.Is(err, ErrMFANotConfigured) {
		t.Fatalf("expected ErrMFANotConfigured, got %v", err)
	}
	if _, err := h.engine.VerifyMFA(context.Background(), perm, "12345"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected short code to fail validation, got %v", err)
	}
}

func TestBackupCodesWorkExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, enrollment := otpUser(t, h)

	for i, code := range enrollment.BackupCodes {
		_, temp := mfaLogin(t, h)
		if _, err := h.engine.VerifyMFA(ctx, temp, code); err != nil {
			t.Fatalf("backup code %d failed: %v", i, err)
		}

		_, temp = mfaLogin(t, h)
		if _, err := h.engine.VerifyMFA(ctx, temp, code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("backup code %d reused: %v", i, err)
		}
	}

	cfg, _ := h.store.MFAConfig(ctx, user.ID)
	if len(cfg.BackupCodes) != 0 {
		t.Fatalf("expected all backup codes consumed, %d left", len(cfg.BackupCodes))
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricBackupCodeUsed]; got != 5 {
		t.Fatalf("expected 5 backup codes counted, got %d", got)
	}
}

func TestBackupCodeCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	_, enrollment := otpUser(t, h)

	_, temp := mfaLogin(t, h)
	if _, err := h.engine.VerifyMFA(context.Background(), temp, strings.ToLower(enrollment.BackupCodes[0])); err != nil {
		t.Fatalf("expected lower-case backup code to verify, got %v", err)
	}
}

func TestVerifyOTPLengthDiscriminates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, enrollment := otpUser(t, h)
	cfg, _ := h.store.MFAConfig(ctx, user.ID)

	for _, code := range []string{"1234567", "12345", enrollment.BackupCodes[0][:6], totpNow(t, enrollment.Secret) + "00"} {
		ok, err := h.engine.VerifyOTP(ctx, cfg, code)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", code, err)
		}
		if ok {
			t.Fatalf("%q: expected rejection", code)
		}
	}
}

func TestConcurrentSameBackupCodeSucceedsOnce(t *testing.T) {
	h := newHarness(t)
	_, enrollment := otpUser(t, h)
	code := enrollment.BackupCodes[0]

	const n = 8
	sessions := make([]*Session, n)
	for i := range sessions {
		_, sessions[i] = mfaLogin(t, h)
	}

	var successes atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(s *Session) {
			defer wg.Done()
			<-start
			_, err := h.engine.VerifyMFA(context.Background(), s, code)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInvalidCode):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(sessions[i])
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("expected exactly one success, got %d", got)
	}
}

func TestConcurrentDifferentBackupCodesBothSucceed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, enrollment := otpUser(t, h)

	_, s1 := mfaLogin(t, h)
	_, s2 := mfaLogin(t, h)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i, s := range []*Session{s1, s2} {
		go func(i int, s *Session) {
			defer wg.Done()
			_, errs[i] = h.engine.VerifyMFA(ctx, s, enrollment.BackupCodes[i])
		}(i, s)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("code %d failed: %v", i, err)
		}
	}
	cfg, _ := h.store.MFAConfig(ctx, user.ID)
	if len(cfg.BackupCodes) != 3 {
		t.Fatalf("expected 3 backup codes left, got %d", len(cfg.BackupCodes))
	}
}

func TestEmailMFAEnrollmentAndLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)

	setup, err := h.engine.ConfigureMFA(ctx, perm, "email")
	if err != nil {
		t.Fatalf("configure email failed: %v", err)
	}
	if setup.Email == nil || setup.OTP != nil || len(setup.Email.Code) != 6 {
		t.Fatalf("unexpected email setup: %+v", setup)
	}

	if _, err := h.engine.VerifyMFA(ctx, perm, wrongCode(setup.Email.Code)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected wrong setup code to fail, got %v", err)
	}
	if _, err := h.engine.VerifyMFA(ctx, perm, setup.Email.Code); err != nil {
		t.Fatalf("setup verification failed: %v", err)
	}

	res, temp := mfaLogin(t, h)
	if res.Challenge.Method != MFAMethodEmail || res.Challenge.Delivery == nil {
		t.Fatalf("expected email challenge with delivery, got %+v", res.Challenge)
	}

	// The setup code was consumed and is bound to another session key.
	if res.Challenge.Delivery.Code != setup.Email.Code {
		if _, err := h.engine.VerifyMFA(ctx, temp, setup.Email.Code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected setup code to fail at login, got %v", err)
		}
	}

	verified, err := h.engine.VerifyMFA(ctx, temp, res.Challenge.Delivery.Code)
	if err != nil {
		t.Fatalf("login challenge failed: %v", err)
	}
	if h.session(verified.Token).Token.IsTemporary {
		t.Fatalf("expected permanent token")
	}
}

func TestEmailChallengeBoundToSessionToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)
	setup, err := h.engine.ConfigureMFA(ctx, perm, "email")
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if _, err := h.engine.VerifyMFA(ctx, perm, setup.Email.Code); err != nil {
		t.Fatalf("setup verification failed: %v", err)
	}

	first, firstSession := mfaLogin(t, h)
	second, secondSession := mfaLogin(t, h)
	if first.Challenge.Delivery.Code == second.Challenge.Delivery.Code {
		t.Skip("challenge codes collided")
	}

	// The second login replaced the first challenge.
	if _, err := h.engine.VerifyMFA(ctx, firstSession, first.Challenge.Delivery.Code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected superseded challenge to fail, got %v", err)
	}
	if _, err := h.engine.VerifyMFA(ctx, firstSession, second.Challenge.Delivery.Code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected code bound to another token to fail, got %v", err)
	}
	if _, err := h.engine.VerifyMFA(ctx, secondSession, second.Challenge.Delivery.Code); err != nil {
		t.Fatalf("expected current challenge to verify, got %v", err)
	}
}

func TestEmailChallengeStoresTokenDigest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedUser("alice@example.com", "alice", alicePassword)
	perm := h.permanentSession("alice", alicePassword)
	setup, err := h.engine.ConfigureMFA(ctx, perm, "email")
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if _, err := h.engine.VerifyMFA(ctx, perm, setup.Email.Code); err != nil {
		t.Fatalf("setup verification failed: %v", err)
	}

	res, temp := mfaLogin(t, h)

	h.store.mu.Lock()
	var stored []string
	for _, ch := range h.store.challenges {
		if !ch.IsVerified {
			stored = append(stored, ch.SessionKey)
		}
	}
	h.store.mu.Unlock()
	if len(stored) != 1 {
		t.Fatalf("expected one pending challenge, got %d", len(stored))
	}
	if stored[0] == res.Challenge.Token {
		t.Fatalf("challenge must not store the raw temporary token")
	}
	if stored[0] != hashToken(res.Challenge.Token) {
		t.Fatalf("expected token digest as session key")
	}

	if _, err := h.engine.VerifyMFA(ctx, temp, res.Challenge.Delivery.Code); err != nil {
		t.Fatalf("login challenge failed: %v", err)
	}
}

func TestLoginFailsClosedWhenEnabledMethodCleared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, enrollment := otpUser(t, h)

	h.store.mu.Lock()
	cfg := h.store.configs[user.ID]
	cfg.DefaultMethod = MFAMethodNone
	h.store.configs[user.ID] = cfg
	h.store.mu.Unlock()

	// The secret is still there, so login keeps challenging for OTP.
	res, temp := mfaLogin(t, h)
	if res.Token != "" || res.Challenge.Method != MFAMethodOTP {
		t.Fatalf("expected otp challenge, got %+v", res)
	}
	if _, err := h.engine.VerifyMFA(ctx, temp, totpNow(t, enrollment.Secret)); err != nil {
		t.Fatalf("verify with fallback method failed: %v", err)
	}

	h.store.mu.Lock()
	cfg = h.store.configs[user.ID]
	cfg.OTPSecret = ""
	h.store.configs[user.ID] = cfg
	h.store.mu.Unlock()

	res, err := h.engine.Login(ctx, loginInput("alice", alicePassword))
	if !errors.Is(err, ErrMFANotConfigured) {
		t.Fatalf("expected ErrMFANotConfigured, got %v", err)
	}
	if res.Token != "" || res.Challenge != nil {
		t.Fatalf("no token may be issued, got %+v", res)
	}
}

func TestConfigureMFAValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register("alice@example.com", "alice", alicePassword)

	if _, err := h.engine.ConfigureMFA(ctx, h.session(reg.Token), "otp"); !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("expected temporary token to be refused, got %v", err)
	}
	if _, err := h.engine.GetMFAConfig(ctx, h.session(reg.Token)); !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("expected temporary token to be refused, got %v", err)
	}

	if _, err := h.engine.VerifyCode(ctx, h.session(reg.Token), reg.Delivery.Code); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	perm := h.permanentSession("alice", alicePassword)

	for _, name := range []string{"", "sms"} {
		if _, err := h.engine.ConfigureMFA(ctx, perm, name); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", name, err)
		}
	}

	h.store.setMethodActive(MFAMethodEmail, false)
	if _, err := h.engine.ConfigureMFA(ctx, perm, "email"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected inactive method to be rejected, got %v", err)
	}

	methods, err := h.engine.ListMFAMethods(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(methods) != 1 || methods[0].Method != MFAMethodOTP {
		t.Fatalf("expected only otp active, got %+v", methods)
	}
}

func TestVerifyMFALocksAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, withRedis())
	_, enrollment := otpUser(t, h)
	_, temp := mfaLogin(t, h)

	bad := wrongCode(totpNow(t, enrollment.Secret))
	for i := 0; i < 5; i++ {
		if _, err := h.engine.VerifyMFA(context.Background(), temp, bad); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}
	if _, err := h.engine.VerifyMFA(context.Background(), temp, totpNow(t, enrollment.Secret)); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}
