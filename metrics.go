package authflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter.
type MetricID uint16

const (
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterRejected counts sign-ups refused by validation, duplicates included.
	MetricRegisterRejected
	// MetricLoginSuccess counts logins that returned a permanent token.
	MetricLoginSuccess
	// MetricLoginFailure counts logins rejected for credentials.
	MetricLoginFailure
	// MetricLoginChallenged counts logins that stopped at an email or MFA challenge.
	MetricLoginChallenged
	// MetricCodeVerifySuccess counts consumed verification codes.
	MetricCodeVerifySuccess
	// MetricCodeVerifyFailure counts rejected verification codes.
	MetricCodeVerifyFailure
	// MetricCodeIssued counts verification codes written.
	MetricCodeIssued
	// MetricMFASuccess counts successful second-factor checks.
	MetricMFASuccess
	// MetricMFAFailure counts failed second-factor checks.
	MetricMFAFailure
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricTokenIssued counts persisted session tokens.
	MetricTokenIssued
	// MetricTokenRevoked counts revoked session tokens.
	MetricTokenRevoked
	// MetricTokenRejected counts ValidateToken failures.
	MetricTokenRejected
	// MetricLogout counts logouts.
	MetricLogout
	// MetricAttemptsLocked counts requests refused by the attempt limiter.
	MetricAttemptsLocked
	// MetricMailDropped counts emails the dispatcher could not queue.
	MetricMailDropped
	// MetricValidateLatency is the ValidateToken latency histogram.
	MetricValidateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:   "register_success",
	MetricRegisterRejected:  "register_rejected",
	MetricLoginSuccess:      "login_success",
	MetricLoginFailure:      "login_failure",
	MetricLoginChallenged:   "login_challenged",
	MetricCodeVerifySuccess: "code_verify_success",
	MetricCodeVerifyFailure: "code_verify_failure",
	MetricCodeIssued:        "code_issued",
	MetricMFASuccess:        "mfa_success",
	MetricMFAFailure:        "mfa_failure",
	MetricBackupCodeUsed:    "backup_code_used",
	MetricTokenIssued:       "token_issued",
	MetricTokenRevoked:      "token_revoked",
	MetricTokenRejected:     "token_rejected",
	MetricLogout:            "logout",
	MetricAttemptsLocked:    "attempts_locked",
	MetricMailDropped:       "mail_dropped",
	MetricValidateLatency:   "validate_latency",
}

// String returns the snake_case metric name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return ""
	}
	return metricNames[id]
}

// HistogramBounds are the upper bounds of the latency buckets. The last
// bucket is unbounded.
var HistogramBounds = []time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg. Disabled metrics ignore every update.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
