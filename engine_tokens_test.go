package authflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/jwt"
)

func TestValidateTokenRejectsTamperedAndExpiredDistinctly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser("alice@example.com", "alice", "correct-password-123")

	raw, err := h.engine.IssueToken(ctx, user, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	parts := strings.Split(raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := h.engine.ValidateToken(ctx, tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
	if _, err := h.engine.ValidateToken(ctx, "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}

	// Issue a token whose embedded expiry lies in the past.
	h.engine.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	expired, err := h.engine.IssueToken(ctx, user, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	h.engine.now = time.Now
	if _, err := h.engine.ValidateToken(ctx, expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateTokenRequiresStoredRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser("alice@example.com", "alice", "correct-password-123")

	// Correctly signed but never persisted.
	signer, err := jwt.NewManager(jwt.Config{SigningKey: testSigningKey, Issuer: "authflow"})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	orphan, err := signer.Issue("orphan", user.ID, user.Email, false, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.engine.ValidateToken(ctx, orphan); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestValidateTokenForDeletedUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser("alice@example.com", "alice", "correct-password-123")

	raw, err := h.engine.IssueToken(ctx, user, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	h.store.mu.Lock()
	delete(h.store.users, user.ID)
	h.store.mu.Unlock()

	if _, err := h.engine.ValidateToken(ctx, raw); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRevokedTokenIsNotFoundAndRevokeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser("alice@example.com", "alice", "correct-password-123")

	raw, err := h.engine.IssueToken(ctx, user, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	other, err := h.engine.IssueToken(ctx, user, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := h.engine.RevokeToken(ctx, user.ID, raw); err != nil {
			t.Fatalf("revoke %d failed: %v", i+1, err)
		}
	}
	if _, err := h.engine.ValidateToken(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after revoke, got %v", err)
	}
	if _, err := h.engine.ValidateToken(ctx, other); err != nil {
		t.Fatalf("expected sibling token to stay valid, got %v", err)
	}
}

func TestValidateTokenTouchIsBestEffort(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser("alice@example.com", "alice", "correct-password-123")
	raw, err := h.engine.IssueToken(ctx, user, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	s, err := h.engine.ValidateToken(ctx, raw)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if s.Token.LastUsedAt == nil {
		t.Fatalf("expected last_used_at to be set")
	}

	h.store.mu.Lock()
	h.store.failTouch = true
	h.store.mu.Unlock()

	s, err = h.engine.ValidateToken(ctx, raw)
	if err != nil {
		t.Fatalf("expected touch failure to be ignored, got %v", err)
	}
	if s.User.ID != user.ID {
		t.Fatalf("unexpected session user %q", s.User.ID)
	}
}

func TestStoredTokenIsHashed(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser("alice@example.com", "alice", "correct-password-123")
	raw, err := h.engine.IssueToken(context.Background(), user, true)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	record, ok := h.store.tokenRecord(raw)
	if !ok {
		t.Fatalf("expected record keyed by digest")
	}
	if record.TokenHash == raw || len(record.TokenHash) != 64 {
		t.Fatalf("expected hex sha-256 digest, got %q", record.TokenHash)
	}
	if !record.IsTemporary || !record.IsValid {
		t.Fatalf("unexpected record flags: %+v", record)
	}
}

func TestLogoutRevokesOnlyPermanentTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register("alice@example.com", "alice", "correct-password-123")

	if err := h.engine.Logout(ctx, h.session(reg.Token)); !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("expected temporary token to be refused, got %v", err)
	}

	if _, err := h.engine.VerifyCode(ctx, h.session(reg.Token), reg.Delivery.Code); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	perm := h.permanentSession("alice", "correct-password-123")
	if err := h.engine.Logout(ctx, perm); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := h.engine.ValidateToken(ctx, perm.Raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected logged out token to be rejected, got %v", err)
	}
}
