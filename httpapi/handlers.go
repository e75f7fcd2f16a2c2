package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badJSON()
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func session(r *http.Request) *authflow.Session {
	sess, _ := authflow.SessionFromContext(r.Context())
	return sess
}

func userJSON(u authflow.User) object {
	return object{
		"id":          u.ID,
		"email":       u.Email,
		"username":    u.Username,
		"is_verified": u.IsVerified,
	}
}

func deliveryJSON(d authflow.CodeDelivery) object {
	return object{"code": d.Code, "expires_at": d.ExpiresAt.UTC().Format(time.RFC3339)}
}

func (s *Server) echo(data object, d *authflow.CodeDelivery) {
	if !s.echoCodes || d == nil {
		return
	}
	data["verification"] = deliveryJSON(*d)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in authflow.RegisterInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.engine.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data := object{
		"message": "User created successfully. Please check your email for verification code.",
		"user":    userJSON(res.User),
		"token":   res.Token,
	}
	s.echo(data, &res.Delivery)
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in authflow.LoginInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.engine.Login(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if ch := res.Challenge; ch != nil {
		data := object{
			"token":                 ch.Token,
			"requires_verification": true,
			"verification_type":     ch.Kind.String(),
		}
		s.echo(data, ch.Delivery)

		if ch.Kind == authflow.ChallengeEmailVerification {
			data["user"] = userJSON(res.User)
			writeJSON(w, http.StatusBadRequest, envelope{Data: data, Code: codeEmailNotVerified, Message: "Please verify your email first."})
			return
		}
		data["mfa_method"] = ch.Method.String()
		writeJSON(w, http.StatusOK, envelope{Data: data, Code: codeMFARequired, Message: "MFA verification required"})
		return
	}

	writeOK(w, "Login successful", object{
		"user":                  userJSON(res.User),
		"token":                 res.Token,
		"requires_verification": false,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), session(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "Logged out successfully", nil)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) verifyCode(w http.ResponseWriter, r *http.Request) {
	var in codeRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.engine.VerifyCode(r.Context(), session(r), in.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "Verification successful", object{
		"token": res.Token,
		"user":  userJSON(res.User),
	})
}

func (s *Server) resendCode(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ResendCode(r.Context(), session(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data := object{
		"message":      "New verification code sent successfully",
		"verification": nil,
	}
	s.echo(data, &res.Delivery)
	writeOK(w, "", data)
}

func (s *Server) mfaMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.engine.ListMFAMethods(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]object, 0, len(methods))
	for _, m := range methods {
		out = append(out, object{"id": m.ID, "name": m.Method.String(), "is_active": m.IsActive})
	}
	writeOK(w, "", object{"methods": out})
}

func (s *Server) getMFAConfig(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.GetMFAConfig(r.Context(), session(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var method any
	if status.DefaultMethod != authflow.MFAMethodNone {
		method = status.DefaultMethod.String()
	}
	writeOK(w, "", object{"is_enabled": status.IsEnabled, "default_method": method})
}

type configureRequest struct {
	DefaultMethod json.RawMessage `json:"default_method"`
}

// methodName accepts the catalog name or its numeric id.
func (s *Server) methodName(r *http.Request, raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}

	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return trimmed, nil
	}
	methods, err := s.engine.ListMFAMethods(r.Context())
	if err != nil {
		return "", err
	}
	for _, m := range methods {
		if m.ID == id {
			return m.Method.String(), nil
		}
	}
	return trimmed, nil
}

func (s *Server) configureMFA(w http.ResponseWriter, r *http.Request) {
	var in configureRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	name, err := s.methodName(r, in.DefaultMethod)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	setup, err := s.engine.ConfigureMFA(r.Context(), session(r), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch {
	case setup.OTP != nil:
		data := object{
			"secret":           setup.OTP.Secret,
			"provisioning_uri": setup.OTP.ProvisioningURI,
			"qr_code":          setup.OTP.QRCode,
		}
		if len(setup.OTP.BackupCodes) > 0 {
			data["backup_codes"] = setup.OTP.BackupCodes
		}
		writeOK(w, "", data)
	default:
		data := object{
			"message":      "Verification code sent to your email",
			"verification": nil,
		}
		s.echo(data, setup.Email)
		writeOK(w, "", data)
	}
}

func (s *Server) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var in codeRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.engine.VerifyMFA(r.Context(), session(r), in.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "MFA verification successful", object{"token": res.Token})
}
