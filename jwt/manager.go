package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned by Parse when the signature is valid but the embedded expiry has passed.
	ErrExpired = errors.New("session token expired")
	// ErrMalformed is returned by Parse for tampered, truncated or foreign tokens.
	ErrMalformed = errors.New("session token malformed")
)

const minSigningKeyLength = 32

// Config defines a public type used by authflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// SigningKey is the HMAC-SHA256 secret. It must be at least 32 bytes.
	SigningKey []byte
	Issuer     string
	Leeway     time.Duration
}

// Manager signs and parses HS256 session tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the session token payload.
//
// The private claims mirror the persisted token record: who the token belongs
// to and whether it is the short-lived verification kind.
type Claims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	IsTemporary bool   `json:"is_temporary"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) < minSigningKeyLength {
		return nil, fmt.Errorf("hs256 signing key must be at least %d bytes", minSigningKeyLength)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)
	cfg.SigningKey = key

	return &Manager{config: cfg, now: time.Now}, nil
}

// Issue signs a token for userID that expires at expiresAt.
//
// tokenID becomes the jti claim; it keeps two tokens minted for the same user
// in the same second distinct.
func (m *Manager) Issue(tokenID, userID, email string, temporary bool, expiresAt time.Time) (string, error) {
	if tokenID == "" || userID == "" {
		return "", errors.New("token id and user id are required")
	}

	claims := Claims{
		UserID:      userID,
		Email:       email,
		IsTemporary: temporary,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.SigningKey)
}

// Parse verifies the signature and expiry of raw.
//
// Parse returns ErrExpired when only the expiry check failed and ErrMalformed
// for every other rejection. Callers can tell the two apart with errors.Is.
func (m *Manager) Parse(raw string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.SigningKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}
