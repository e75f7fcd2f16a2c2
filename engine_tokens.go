package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/jwt"
	"go.uber.org/zap"
)

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssueToken signs and persists a session token for user.
//
// Temporary tokens live for Token.TemporaryTTL and only serve the
// verification and MFA steps. Issuing never invalidates other tokens.
func (e *Engine) IssueToken(ctx context.Context, user User, temporary bool) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.issueToken(ctx, user, temporary)
}

func (e *Engine) issueToken(ctx context.Context, user User, temporary bool) (string, error) {
	now := e.now()
	ttl := e.config.Token.PermanentTTL
	if temporary {
		ttl = e.config.Token.TemporaryTTL
	}
	expiresAt := now.Add(ttl)

	id := internal.NewRecordID()
	raw, err := e.jwtManager.Issue(id, user.ID, user.Email, temporary, expiresAt)
	if err != nil {
		return "", internalErr("sign token", err)
	}

	record := Token{
		ID:          id,
		UserID:      user.ID,
		TokenHash:   hashToken(raw),
		IsTemporary: temporary,
		IsValid:     true,
		Device:      deviceFromContext(ctx),
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := e.store.CreateToken(ctx, record); err != nil {
		return "", internalErr("store token", err)
	}

	e.metricInc(MetricTokenIssued)
	return raw, nil
}

// ValidateToken checks the signature of raw and its stored record.
//
// It returns ErrTokenExpired when the embedded expiry passed, ErrTokenInvalid
// for a bad signature or format and ErrTokenNotFound when no valid, unexpired
// record exists. A record whose user is gone yields ErrUserNotFound.
// last_used_at is refreshed on a best-effort basis.
func (e *Engine) ValidateToken(ctx context.Context, raw string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	s, err := e.validateToken(ctx, raw)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	if err != nil {
		e.metricInc(MetricTokenRejected)
	}
	return s, err
}

func (e *Engine) validateToken(ctx context.Context, raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := e.jwtManager.Parse(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	now := e.now()
	record, err := e.store.ValidToken(ctx, hashToken(raw), now)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, internalErr("load token", err)
	}
	if record.UserID != claims.UserID || record.IsTemporary != claims.IsTemporary {
		return nil, ErrTokenInvalid
	}

	user, err := e.store.UserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalErr("load user", err)
	}

	if err := e.store.TouchToken(ctx, record.ID, now); err != nil {
		e.logger.Warn("token last_used_at update failed",
			zap.String("token_id", record.ID),
			zap.Error(err),
		)
	} else {
		record.LastUsedAt = &now
	}

	return &Session{User: user, Token: record, Raw: raw}, nil
}

// RevokeToken invalidates raw for userID. Revoking an already revoked or
// unknown token succeeds.
func (e *Engine) RevokeToken(ctx context.Context, userID, raw string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.revokeToken(ctx, userID, raw)
}

func (e *Engine) revokeToken(ctx context.Context, userID, raw string) error {
	if err := e.store.RevokeToken(ctx, userID, hashToken(strings.TrimSpace(raw))); err != nil {
		return internalErr("revoke token", err)
	}
	e.metricInc(MetricTokenRevoked)
	return nil
}

// escalate issues a permanent token and then revokes the temporary one the
// session carried. Revocation failure is logged; the new token stays valid.
func (e *Engine) escalate(ctx context.Context, s *Session) (string, error) {
	token, err := e.issueToken(ctx, s.User, false)
	if err != nil {
		return "", err
	}
	if !s.Token.IsTemporary {
		return token, nil
	}
	if err := e.revokeToken(ctx, s.User.ID, s.Raw); err != nil {
		e.logger.Warn("temporary token revoke failed",
			zap.String("user_id", s.User.ID),
			zap.String("token_id", s.Token.ID),
			zap.Error(err),
		)
	}
	return token, nil
}

func requireTemporary(s *Session) error {
	if s == nil {
		return ErrUnauthorized
	}
	if !s.Token.IsTemporary {
		return ErrInvalidTokenType
	}
	return nil
}

func requirePermanent(s *Session) error {
	if s == nil {
		return ErrUnauthorized
	}
	if s.Token.IsTemporary {
		return ErrInvalidTokenType
	}
	return nil
}
