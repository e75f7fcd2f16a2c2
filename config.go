package authflow

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by authflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token    TokenConfig
	Codes    CodeConfig
	MFA      MFAConfigSection
	Password PasswordConfig
	Limiter  LimiterConfig
	Mail     MailConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls session token signing and lifetimes.
type TokenConfig struct {
	// SigningKey is the HS256 secret, at least 32 bytes.
	SigningKey   []byte
	Issuer       string
	TemporaryTTL time.Duration
	PermanentTTL time.Duration
	Leeway       time.Duration
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig controls email verification codes and MFA email challenges.
type CodeConfig struct {
	Digits int
	TTL    time.Duration
	// EchoInResponse returns issued codes to the caller. Development only.
	EchoInResponse bool
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfigSection controls TOTP enrollment and backup codes.
type MFAConfigSection struct {
	Issuer           string
	Period           uint
	Skew             uint
	SecretSize       uint
	QRSize           int
	BackupCodeCount  int
	BackupCodeLength int
	// BackupCodeRetries bounds the optimistic-concurrency retries when removing a used backup code.
	BackupCodeRetries int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
LIMITER CONFIG
====================================
*/

// LimiterConfig bounds failed code, MFA and login attempts. It only applies
// when the engine was built with a Redis client.
type LimiterConfig struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig controls the asynchronous email dispatcher.
type MailConfig struct {
	Enabled     bool
	BufferSize  int
	SendTimeout time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. The signing key is left
// empty and must be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:       "authflow",
			TemporaryTTL: 10 * time.Minute,
			PermanentTTL: 7 * 24 * time.Hour,
		},
		Codes: CodeConfig{
			Digits: 6,
			TTL:    10 * time.Minute,
		},
		MFA: MFAConfigSection{
			Issuer:            "app",
			Period:            30,
			Skew:              1,
			SecretSize:        20,
			QRSize:            256,
			BackupCodeCount:   5,
			BackupCodeLength:  8,
			BackupCodeRetries: 5,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Limiter: LimiterConfig{
			MaxAttempts: 5,
			Window:      10 * time.Minute,
			KeyPrefix:   "af",
		},
		Mail: MailConfig{
			Enabled:     true,
			BufferSize:  256,
			SendTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.SigningKey) < 32 {
		return errors.New("Token SigningKey must be at least 32 bytes")
	}
	if c.Token.TemporaryTTL <= 0 {
		return errors.New("Token TemporaryTTL must be > 0")
	}
	if c.Token.PermanentTTL <= c.Token.TemporaryTTL {
		return errors.New("Token PermanentTTL must be longer than TemporaryTTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Codes
	if c.Codes.Digits != 6 {
		return errors.New("Codes Digits must be 6")
	}
	if c.Codes.TTL <= 0 || c.Codes.TTL > time.Hour {
		return errors.New("Codes TTL must be > 0 and <= 1h")
	}

	// MFA
	if strings.TrimSpace(c.MFA.Issuer) == "" {
		return errors.New("MFA Issuer is required")
	}
	if strings.Contains(c.MFA.Issuer, ":") {
		return errors.New("MFA Issuer cannot contain a colon")
	}
	if c.MFA.Period < 15 {
		return errors.New("MFA Period must be >= 15 seconds")
	}
	if c.MFA.Skew > 3 {
		return errors.New("MFA Skew must be <= 3")
	}
	if c.MFA.SecretSize < 16 {
		return errors.New("MFA SecretSize must be >= 16 bytes")
	}
	if c.MFA.BackupCodeCount <= 0 {
		return errors.New("MFA BackupCodeCount must be > 0")
	}
	// Code length is how VerifyMFA tells backup codes from TOTP codes.
	if c.MFA.BackupCodeLength != 8 {
		return errors.New("MFA BackupCodeLength must be 8")
	}
	if c.MFA.BackupCodeRetries <= 0 {
		return errors.New("MFA BackupCodeRetries must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > 128 {
		return errors.New("Password MinLength must be between 1 and 128")
	}

	// Limiter
	if c.Limiter.MaxAttempts <= 0 {
		return errors.New("Limiter MaxAttempts must be > 0")
	}
	if c.Limiter.Window <= 0 {
		return errors.New("Limiter Window must be > 0")
	}

	// Mail
	if c.Mail.Enabled {
		if c.Mail.BufferSize <= 0 {
			return errors.New("Mail BufferSize must be > 0 when mail is enabled")
		}
		if c.Mail.SendTimeout <= 0 {
			return errors.New("Mail SendTimeout must be > 0 when mail is enabled")
		}
	}

	return nil
}
