package authflow

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/password"
	"go.uber.org/zap"
)

const (
	msgEmailTaken    = "user with this email already exists."
	msgUsernameTaken = "A user with that username already exists."
)

// Register creates an unverified account, a temporary token and a
// registration code.
//
// Every input problem, a taken email or username included, is reported as a
// *ValidationError keyed by field.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if err := e.ready(); err != nil {
		return RegisterResult{}, err
	}

	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	verr := &ValidationError{}
	if err := e.validator.Struct(in); err != nil {
		var fields *ValidationError
		if !errors.As(err, &fields) {
			return RegisterResult{}, err
		}
		verr = fields
	}
	if in.Password != "" && len(in.Password) < e.passwordHash.MinLength() {
		verr.Add("password", "This password is too short.")
	}

	if in.Email != "" {
		taken, err := e.store.EmailTaken(ctx, in.Email)
		if err != nil {
			return RegisterResult{}, internalErr("check email", err)
		}
		if taken {
			verr.Add("email", msgEmailTaken)
		}
	}
	if in.Username != "" {
		taken, err := e.store.UsernameTaken(ctx, in.Username)
		if err != nil {
			return RegisterResult{}, internalErr("check username", err)
		}
		if taken {
			verr.Add("username", msgUsernameTaken)
		}
	}
	if !verr.empty() {
		e.metricInc(MetricRegisterRejected)
		return RegisterResult{}, verr
	}

	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			e.metricInc(MetricRegisterRejected)
			return RegisterResult{}, fieldError("password", "This password is too short.")
		}
		return RegisterResult{}, internalErr("hash password", err)
	}

	now := e.now()
	user := User{
		ID:           internal.NewUserID(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			e.metricInc(MetricRegisterRejected)
			return RegisterResult{}, fieldError("email", msgEmailTaken)
		case errors.Is(err, ErrDuplicateUsername):
			e.metricInc(MetricRegisterRejected)
			return RegisterResult{}, fieldError("username", msgUsernameTaken)
		default:
			return RegisterResult{}, internalErr("create user", err)
		}
	}

	token, err := e.issueToken(ctx, user, true)
	if err != nil {
		return RegisterResult{}, err
	}
	delivery, err := e.issueCode(ctx, user, PurposeRegistration)
	if err != nil {
		return RegisterResult{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.logger.Info("user registered", zap.String("user_id", user.ID))

	return RegisterResult{User: user, Token: token, Delivery: delivery}, nil
}

// normalizeEmail trims s and lower-cases the domain part.
func normalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	return s[:at] + "@" + strings.ToLower(s[at+1:])
}
