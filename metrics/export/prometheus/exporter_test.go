package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authflow"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot authflow.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() authflow.MetricsSnapshot { return f.snapshot }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: authflow.MetricsSnapshot{
		Counters:   map[authflow.MetricID]uint64{},
		Histograms: map[authflow.MetricID][]uint64{},
	}})

	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no metrics for disabled snapshot, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: authflow.MetricsSnapshot{
		Counters: map[authflow.MetricID]uint64{
			authflow.MetricLoginSuccess:   7,
			authflow.MetricBackupCodeUsed: 2,
		},
		Histograms: map[authflow.MetricID][]uint64{
			authflow.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}})

	expected := `
# HELP authflow_login_success_total Logins that returned a permanent token.
# TYPE authflow_login_success_total counter
authflow_login_success_total 7
# HELP authflow_backup_code_used_total Backup codes consumed.
# TYPE authflow_backup_code_used_total counter
authflow_backup_code_used_total 2
# HELP authflow_validate_latency_seconds ValidateToken latency.
# TYPE authflow_validate_latency_seconds histogram
authflow_validate_latency_seconds_bucket{le="0.005"} 1
authflow_validate_latency_seconds_bucket{le="0.01"} 3
authflow_validate_latency_seconds_bucket{le="0.025"} 6
authflow_validate_latency_seconds_bucket{le="0.05"} 10
authflow_validate_latency_seconds_bucket{le="0.1"} 15
authflow_validate_latency_seconds_bucket{le="0.25"} 21
authflow_validate_latency_seconds_bucket{le="0.5"} 28
authflow_validate_latency_seconds_bucket{le="+Inf"} 36
authflow_validate_latency_seconds_sum 0
authflow_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authflow_login_success_total",
		"authflow_backup_code_used_total",
		"authflow_validate_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestCollectorDescribesEveryCounter(t *testing.T) {
	c := NewCollector(fakeSource{})
	if got, want := len(c.counters), int(authflow.MetricValidateLatency); got != want {
		t.Fatalf("expected %d counters, got %d", want, got)
	}
	for i, cd := range c.counters {
		if cd.id != authflow.MetricID(i) || cd.desc == nil {
			t.Fatalf("counter %d: unexpected id %s or nil desc", i, cd.id)
		}
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	src := fakeSource{snapshot: authflow.MetricsSnapshot{
		Counters:   map[authflow.MetricID]uint64{authflow.MetricLogout: 3},
		Histograms: map[authflow.MetricID][]uint64{},
	}}

	rec := httptest.NewRecorder()
	Handler(src).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "authflow_logout_total 3") {
		t.Fatalf("expected logout counter, got:\n%s", body)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition content type, got %q", got)
	}
}
