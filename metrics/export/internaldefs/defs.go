package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/authflow"
)

// Namespace prefixes every exported metric name.
const Namespace = "authflow"

// CounterDef names a single engine counter.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// FullName returns the namespaced counter name with the _total suffix.
func (d CounterDef) FullName() string {
	return Namespace + "_" + d.Name + "_total"
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricRegisterSuccess, Name: authflow.MetricRegisterSuccess.String(), Help: "Accounts created."},
	{ID: authflow.MetricRegisterRejected, Name: authflow.MetricRegisterRejected.String(), Help: "Sign-ups rejected by validation."},
	{ID: authflow.MetricLoginSuccess, Name: authflow.MetricLoginSuccess.String(), Help: "Logins that returned a permanent token."},
	{ID: authflow.MetricLoginFailure, Name: authflow.MetricLoginFailure.String(), Help: "Logins rejected for credentials."},
	{ID: authflow.MetricLoginChallenged, Name: authflow.MetricLoginChallenged.String(), Help: "Logins that stopped at an email or MFA challenge."},
	{ID: authflow.MetricCodeVerifySuccess, Name: authflow.MetricCodeVerifySuccess.String(), Help: "Verification codes consumed."},
	{ID: authflow.MetricCodeVerifyFailure, Name: authflow.MetricCodeVerifyFailure.String(), Help: "Verification codes rejected."},
	{ID: authflow.MetricCodeIssued, Name: authflow.MetricCodeIssued.String(), Help: "Verification codes issued."},
	{ID: authflow.MetricMFASuccess, Name: authflow.MetricMFASuccess.String(), Help: "Successful second-factor checks."},
	{ID: authflow.MetricMFAFailure, Name: authflow.MetricMFAFailure.String(), Help: "Failed second-factor checks."},
	{ID: authflow.MetricBackupCodeUsed, Name: authflow.MetricBackupCodeUsed.String(), Help: "Backup codes consumed."},
	{ID: authflow.MetricTokenIssued, Name: authflow.MetricTokenIssued.String(), Help: "Session tokens issued."},
	{ID: authflow.MetricTokenRevoked, Name: authflow.MetricTokenRevoked.String(), Help: "Session tokens revoked."},
	{ID: authflow.MetricTokenRejected, Name: authflow.MetricTokenRejected.String(), Help: "Session tokens rejected by validation."},
	{ID: authflow.MetricLogout, Name: authflow.MetricLogout.String(), Help: "Logouts."},
	{ID: authflow.MetricAttemptsLocked, Name: authflow.MetricAttemptsLocked.String(), Help: "Requests refused by the attempt limiter."},
	{ID: authflow.MetricMailDropped, Name: authflow.MetricMailDropped.String(), Help: "Emails dropped because the dispatch queue was full."},
}

// ValidateLatency describes the ValidateToken latency histogram.
var ValidateLatency = struct {
	ID   authflow.MetricID
	Name string
	Help string
}{
	ID:   authflow.MetricValidateLatency,
	Name: Namespace + "_validate_latency_seconds",
	Help: "ValidateToken latency.",
}

// BoundsSeconds returns authflow.HistogramBounds in seconds.
func BoundsSeconds() []float64 {
	out := make([]float64, 0, len(authflow.HistogramBounds))
	for _, b := range authflow.HistogramBounds {
		out = append(out, b.Seconds())
	}
	return out
}

// BoundSuffixes returns one name suffix per bucket, e.g. "0_005", ending with "inf".
func BoundSuffixes() []string {
	out := make([]string, 0, len(authflow.HistogramBounds)+1)
	for _, b := range BoundsSeconds() {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(b, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// Cumulative turns per-bucket counts into cumulative ones, one per bound
// plus the +Inf overflow. Missing buckets count as zero.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(authflow.HistogramBounds)+1)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	for i := len(out); i < len(raw); i++ {
		out[len(out)-1] += raw[i]
	}
	return out
}
