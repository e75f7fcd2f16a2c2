package authflow

import (
	"fmt"
	"strings"
	"time"
)

// Purpose is the verification-code category.
type Purpose string

const (
	// PurposeRegistration codes confirm the email address given at sign-up.
	PurposeRegistration Purpose = "registration"
	// PurposeLogin codes are sent when an unverified user logs in.
	PurposeLogin Purpose = "login"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeRegistration || p == PurposeLogin
}

// MFAMethod is the closed set of second factors.
type MFAMethod uint8

const (
	// MFAMethodNone means no method is selected.
	MFAMethodNone MFAMethod = iota
	// MFAMethodOTP is an authenticator app (TOTP) with backup codes.
	MFAMethodOTP
	// MFAMethodEmail is a one-time code sent by email.
	MFAMethodEmail
)

// String returns the catalog name: "otp", "email" or "" for none.
func (m MFAMethod) String() string {
	switch m {
	case MFAMethodOTP:
		return "otp"
	case MFAMethodEmail:
		return "email"
	default:
		return ""
	}
}

// ParseMFAMethod maps a catalog name to its method. Matching ignores case.
func ParseMFAMethod(name string) (MFAMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "otp":
		return MFAMethodOTP, nil
	case "email":
		return MFAMethodEmail, nil
	default:
		return MFAMethodNone, fmt.Errorf("%w: %q", ErrMFAMethodUnavailable, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MFAMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string decodes to MFAMethodNone.
func (m *MFAMethod) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = MFAMethodNone
		return nil
	}
	parsed, err := ParseMFAMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// User is the account record.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	IsVerified   bool
	HasMFA       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Device describes the client a token was issued to.
type Device struct {
	Type    string
	OS      string
	Browser string
}

// Token is the persisted record behind a signed session token.
//
// Only the SHA-256 of the signed string is stored.
type Token struct {
	ID          string
	UserID      string
	TokenHash   string
	IsTemporary bool
	IsValid     bool
	Device      Device
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastUsedAt  *time.Time
}

// Session is a validated token together with its owner.
type Session struct {
	User  User
	Token Token
	Raw   string
}

// VerificationCode is a single-use numeric code sent by email.
type VerificationCode struct {
	ID        string
	UserID    string
	Code      string
	Purpose   Purpose
	IsUsed    bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// MFAConfig is the per-user MFA state.
//
// BackupCodes holds digests, never the codes themselves. Version increments
// on every write and guards concurrent backup-code removal.
type MFAConfig struct {
	UserID        string
	IsEnabled     bool
	DefaultMethod MFAMethod
	OTPSecret     string
	BackupCodes   []string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MFAChallenge is a pending email second factor.
type MFAChallenge struct {
	ID         string
	UserID     string
	Method     MFAMethod
	Code       string
	SessionKey string
	IsVerified bool
	VerifiedAt *time.Time
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// MFAMethodInfo is a row of the method catalog.
type MFAMethodInfo struct {
	ID       int64
	Method   MFAMethod
	IsActive bool
}

// CodeDelivery is what was sent and until when it is usable.
type CodeDelivery struct {
	Code      string
	ExpiresAt time.Time
}

// ChallengeKind tells the client which pending step to resolve.
type ChallengeKind uint8

const (
	// ChallengeEmailVerification asks for the emailed verification code.
	ChallengeEmailVerification ChallengeKind = iota + 1
	// ChallengeMFA asks for a second factor using Challenge.Method.
	ChallengeMFA
)

// String returns "email" or "mfa".
func (k ChallengeKind) String() string {
	switch k {
	case ChallengeEmailVerification:
		return "email"
	case ChallengeMFA:
		return "mfa"
	default:
		return ""
	}
}

// Challenge is the pending step a temporary token was issued for.
type Challenge struct {
	Kind   ChallengeKind
	Method MFAMethod
	Token  string
	// Delivery is set when a code was sent as part of the challenge.
	Delivery *CodeDelivery
}

// AuthResult is returned by Login.
//
// Exactly one of Token (permanent) and Challenge is set.
type AuthResult struct {
	User      User
	Token     string
	Challenge *Challenge
}

// RequiresVerification reports whether the login stopped at a challenge.
func (r AuthResult) RequiresVerification() bool {
	return r.Challenge != nil
}

// RegisterInput is the sign-up request.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,max=150,username"`
	Password string `json:"password" validate:"required"`
}

// RegisterResult carries the new user, a temporary token and the code sent.
type RegisterResult struct {
	User     User
	Token    string
	Delivery CodeDelivery
}

// LoginInput accepts either an email or a username as identifier.
type LoginInput struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username" validate:"required_without=Email"`
	Password string `json:"password" validate:"required"`
}

// Identifier returns the email when present, the username otherwise.
func (in LoginInput) Identifier() string {
	if strings.TrimSpace(in.Email) != "" {
		return in.Email
	}
	return in.Username
}

// VerifyResult is returned once a temporary token was escalated.
type VerifyResult struct {
	User  User
	Token string
}

// ResendResult describes the fresh code that superseded the pending one.
type ResendResult struct {
	Purpose  Purpose
	Delivery CodeDelivery
}

// MFAStatus is the client-visible part of MFAConfig.
type MFAStatus struct {
	IsEnabled     bool
	DefaultMethod MFAMethod
}

// OTPEnrollment is the authenticator provisioning material.
//
// BackupCodes holds the clear codes of the set stored by this call. Earlier
// sets stop working.
type OTPEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
	BackupCodes     []string
}

// MFASetup is returned by ConfigureMFA. OTP and Email are mutually exclusive.
type MFASetup struct {
	Method MFAMethod
	OTP    *OTPEnrollment
	Email  *CodeDelivery
}
