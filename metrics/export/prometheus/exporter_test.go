package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ctadmin "github.com/MrEthical07/ctadmin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot ctadmin.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() ctadmin.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: ctadmin.MetricsSnapshot{
			Counters:   map[ctadmin.MetricID]uint64{},
			Histograms: map[ctadmin.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(exp); got != 0 {
		t.Fatalf("expected no metrics for disabled source, got %d", got)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: ctadmin.MetricsSnapshot{
			Counters: map[ctadmin.MetricID]uint64{
				ctadmin.MetricLoginSuccess:    7,
				ctadmin.MetricRecoveryRetried: 3,
			},
			Histograms: map[ctadmin.MetricID][]uint64{
				ctadmin.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP ctadmin_login_success_total Successful sign-ins.
# TYPE ctadmin_login_success_total counter
ctadmin_login_success_total 7
# HELP ctadmin_recovery_retried_total Requests re-sent after a session renewal.
# TYPE ctadmin_recovery_retried_total counter
ctadmin_recovery_retried_total 3
# HELP ctadmin_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE ctadmin_audit_dropped_total counter
ctadmin_audit_dropped_total 2
# HELP ctadmin_request_latency_seconds Backend round-trip latency.
# TYPE ctadmin_request_latency_seconds histogram
ctadmin_request_latency_seconds_bucket{le="0.005"} 1
ctadmin_request_latency_seconds_bucket{le="0.01"} 3
ctadmin_request_latency_seconds_bucket{le="0.025"} 6
ctadmin_request_latency_seconds_bucket{le="0.05"} 10
ctadmin_request_latency_seconds_bucket{le="0.1"} 15
ctadmin_request_latency_seconds_bucket{le="0.25"} 21
ctadmin_request_latency_seconds_bucket{le="0.5"} 28
ctadmin_request_latency_seconds_bucket{le="+Inf"} 36
ctadmin_request_latency_seconds_sum 0
ctadmin_request_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"ctadmin_login_success_total",
		"ctadmin_recovery_retried_total",
		"ctadmin_audit_dropped_total",
		"ctadmin_request_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}

func TestCollectorRegistersWithCallerRegistry(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: ctadmin.MetricsSnapshot{
			Counters:   map[ctadmin.MetricID]uint64{ctadmin.MetricLogout: 1},
			Histograms: map[ctadmin.MetricID][]uint64{},
		},
	})
	reg := prometheus.NewRegistry()
	if err := reg.Register(exp); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected gathered families")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: ctadmin.MetricsSnapshot{
			Counters:   map[ctadmin.MetricID]uint64{ctadmin.MetricLoginSuccess: 1},
			Histograms: map[ctadmin.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition, got %q", got)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "ctadmin_login_success_total 1") {
		t.Fatalf("missing counter in body:\n%s", body)
	}
}

func BenchmarkCollect(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: ctadmin.MetricsSnapshot{
			Counters: map[ctadmin.MetricID]uint64{
				ctadmin.MetricRequest:        1000,
				ctadmin.MetricLoginSuccess:   40,
				ctadmin.MetricRenewalSuccess: 800,
			},
			Histograms: map[ctadmin.MetricID][]uint64{
				ctadmin.MetricRequestLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(exp)
	}
}
