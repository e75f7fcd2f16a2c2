package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
)

// Validator is the part of authflow.Engine the guards need.
type Validator interface {
	ValidateToken(ctx context.Context, raw string) (*authflow.Session, error)
}

// Mode selects which token kinds a guard admits.
type Mode uint8

const (
	// ModeAny admits temporary and permanent tokens.
	ModeAny Mode = iota
	// ModeTemporary admits temporary tokens only.
	ModeTemporary
	// ModePermanent admits permanent tokens only.
	ModePermanent
)

// ErrorHandler renders a rejected request. err is authflow.ErrUnauthorized
// for a missing bearer token, authflow.ErrInvalidTokenType for a token of the
// wrong kind, or the ValidateToken error.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures a guard.
type Option func(*options)

type options struct {
	onError ErrorHandler
}

// WithErrorHandler replaces the default plain-text rejection.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.onError = h
		}
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, authflow.ErrInvalidTokenType) {
		http.Error(w, "invalid token type", http.StatusBadRequest)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// Guard returns middleware that admits any valid token.
func Guard(v Validator, opts ...Option) func(http.Handler) http.Handler {
	return guard(v, ModeAny, opts...)
}

func guard(v Validator, mode Mode, opts ...Option) func(http.Handler) http.Handler {
	o := options{onError: defaultErrorHandler}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				o.onError(w, r, authflow.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				o.onError(w, r, authflow.ErrUnauthorized)
				return
			}

			s, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				o.onError(w, r, err)
				return
			}
			if !mode.admits(s.Token.IsTemporary) {
				o.onError(w, r, authflow.ErrInvalidTokenType)
				return
			}

			next.ServeHTTP(w, r.WithContext(authflow.WithSession(r.Context(), s)))
		})
	}
}

func (m Mode) admits(temporary bool) bool {
	switch m {
	case ModeTemporary:
		return temporary
	case ModePermanent:
		return !temporary
	default:
		return true
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
