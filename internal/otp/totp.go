package otp

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	defaultIssuer     = "app"
	defaultPeriod     = 30
	defaultSkew       = 1
	defaultSecretSize = 20
	defaultQRSize     = 256
	codeDigits        = 6
)

// ErrInvalidAccount is returned when the account label cannot be embedded in a provisioning URI.
var ErrInvalidAccount = errors.New("otp: invalid account name")

// Config controls secret generation and validation.
type Config struct {
	Issuer     string
	Period     uint
	Skew       uint
	SecretSize uint
	QRSize     int
}

// Manager generates and validates six digit SHA1 TOTP codes.
type Manager struct {
	cfg Config
}

// Key is an enrolled secret with its provisioning material.
type Key struct {
	Secret string
	URI    string
	QRCode string
}

// NewManager fills defaults and validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if strings.Contains(cfg.Issuer, ":") {
		return nil, errors.New("otp: issuer cannot contain a colon")
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = defaultSecretSize
	}
	if cfg.SecretSize < 16 {
		return nil, errors.New("otp: secret size must be >= 16 bytes")
	}
	if cfg.Skew > 3 {
		return nil, errors.New("otp: skew must be <= 3")
	}
	if cfg.QRSize == 0 {
		cfg.QRSize = defaultQRSize
	}
	return &Manager{cfg: cfg}, nil
}

// Period returns the time step length.
func (m *Manager) Period() time.Duration {
	return time.Duration(m.cfg.Period) * time.Second
}

// Generate creates a fresh random secret for account.
func (m *Manager) Generate(account string) (Key, error) {
	return m.key(account, nil)
}

// FromSecret rebuilds the provisioning material of an existing base32 secret.
func (m *Manager) FromSecret(account, secret string) (Key, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return Key{}, err
	}
	return m.key(account, raw)
}

func (m *Manager) key(account string, secret []byte) (Key, error) {
	account = strings.TrimSpace(account)
	if account == "" || strings.Contains(account, ":") {
		return Key{}, ErrInvalidAccount
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: account,
		Period:      m.cfg.Period,
		SecretSize:  m.cfg.SecretSize,
		Secret:      secret,
		Digits:      potp.DigitsSix,
		Algorithm:   potp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("otp: generate key: %w", err)
	}

	qr, err := m.qrDataURI(key)
	if err != nil {
		return Key{}, err
	}

	return Key{Secret: key.Secret(), URI: key.URL(), QRCode: qr}, nil
}

func (m *Manager) qrDataURI(key *potp.Key) (string, error) {
	img, err := key.Image(m.cfg.QRSize, m.cfg.QRSize)
	if err != nil {
		return "", fmt.Errorf("otp: render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("otp: encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Validate reports whether code matches secret at t within the skew window.
//
// Codes that are not exactly six ASCII digits never match.
func (m *Manager) Validate(code, secret string, t time.Time) bool {
	if len(code) != codeDigits || secret == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}

	ok, err := totp.ValidateCustom(code, secret, t.UTC(), m.validateOpts())
	if err != nil {
		return false
	}
	return ok
}

// Code computes the code for secret at t.
func (m *Manager) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), m.validateOpts())
}

func (m *Manager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	}
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.TrimRight(s, "=")
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, errors.New("otp: invalid base32 secret")
	}
	return raw, nil
}
