package authflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/mailer"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningKey = testSigningKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

type harness struct {
	t      *testing.T
	engine *Engine
	store  *memoryStore
	mail   *mailer.ChannelSender
	redis  *miniredis.Miniredis
}

type harnessOption func(*testing.T, *Builder, *harness)

func withRedis() harnessOption {
	return func(t *testing.T, b *Builder, h *harness) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis start failed: %v", err)
		}
		t.Cleanup(mr.Close)

		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		h.redis = mr
		b.WithRedis(rdb)
	}
}

func withConfig(mutate func(*Config)) harnessOption {
	return func(_ *testing.T, b *Builder, _ *harness) {
		cfg := b.config
		mutate(&cfg)
		b.WithConfig(cfg)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		store: newMemoryStore(),
		mail:  mailer.NewChannelSender(1024),
	}
	b := New().WithConfig(fastConfig()).WithStore(h.store).WithMailSender(h.mail)
	for _, opt := range opts {
		opt(t, b, h)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) register(email, username, password string) RegisterResult {
	h.t.Helper()
	res, err := h.engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	if err != nil {
		h.t.Fatalf("register failed: %v", err)
	}
	return res
}

// verifiedUser registers and verifies an account and returns it.
func (h *harness) verifiedUser(email, username, password string) User {
	h.t.Helper()
	reg := h.register(email, username, password)
	res, err := h.engine.VerifyCode(context.Background(), h.session(reg.Token), reg.Delivery.Code)
	if err != nil {
		h.t.Fatalf("verify failed: %v", err)
	}
	return res.User
}

// permanentSession logs in a verified user without MFA.
func (h *harness) permanentSession(identifier, password string) *Session {
	h.t.Helper()
	res, err := h.engine.Login(context.Background(), loginInput(identifier, password))
	if err != nil {
		h.t.Fatalf("login failed: %v", err)
	}
	if res.Token == "" {
		h.t.Fatalf("expected permanent token, got challenge %+v", res.Challenge)
	}
	return h.session(res.Token)
}

func loginInput(identifier, password string) LoginInput {
	if strings.Contains(identifier, "@") {
		return LoginInput{Email: identifier, Password: password}
	}
	return LoginInput{Username: identifier, Password: password}
}

func (h *harness) session(raw string) *Session {
	h.t.Helper()
	s, err := h.engine.ValidateToken(context.Background(), raw)
	if err != nil {
		h.t.Fatalf("validate failed: %v", err)
	}
	return s
}

func (h *harness) enrollOTP(s *Session) *OTPEnrollment {
	h.t.Helper()
	setup, err := h.engine.ConfigureMFA(context.Background(), s, "otp")
	if err != nil {
		h.t.Fatalf("configure otp failed: %v", err)
	}
	if setup.OTP == nil {
		h.t.Fatalf("expected otp enrollment")
	}
	return setup.OTP
}

func totpNow(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate totp failed: %v", err)
	}
	return code
}

// wrongCode returns a six digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
