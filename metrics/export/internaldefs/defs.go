package internaldefs

import (
	ctadmin "github.com/MrEthical07/ctadmin"
)

// CounterDef names one client counter for exporters.
type CounterDef struct {
	ID   ctadmin.MetricID
	Name string
	Help string
}

// HistogramDef names one client latency histogram for exporters.
type HistogramDef struct {
	ID   ctadmin.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: ctadmin.MetricRequest, Name: "ctadmin_requests_total", Help: "Round trips sent to the backend, retries included."},
	{ID: ctadmin.MetricRequestFailure, Name: "ctadmin_request_failures_total", Help: "Round trips answered with a non-2xx status."},
	{ID: ctadmin.MetricTransportError, Name: "ctadmin_transport_errors_total", Help: "Round trips that got no response."},
	{ID: ctadmin.MetricUnauthorized, Name: "ctadmin_unauthorized_total", Help: "Responses with status 401."},
	{ID: ctadmin.MetricRenewalSuccess, Name: "ctadmin_renewal_success_total", Help: "Completed session renewals."},
	{ID: ctadmin.MetricRenewalFailure, Name: "ctadmin_renewal_failure_total", Help: "Failed session renewals."},
	{ID: ctadmin.MetricRecoveryRetried, Name: "ctadmin_recovery_retried_total", Help: "Requests re-sent after a session renewal."},
	{ID: ctadmin.MetricRecoveryRenewFailed, Name: "ctadmin_recovery_renew_failed_total", Help: "Recoveries abandoned because renewal failed."},
	{ID: ctadmin.MetricRecoveryRedirected, Name: "ctadmin_recovery_redirected_total", Help: "Bearer tokens dropped after the backend rejected them."},
	{ID: ctadmin.MetricLoginSuccess, Name: "ctadmin_login_success_total", Help: "Successful sign-ins."},
	{ID: ctadmin.MetricLoginFailure, Name: "ctadmin_login_failure_total", Help: "Rejected sign-ins."},
	{ID: ctadmin.MetricLogout, Name: "ctadmin_logout_total", Help: "Sign-outs."},
	{ID: ctadmin.MetricSessionExpired, Name: "ctadmin_session_expired_total", Help: "Sessions dropped after the backend rejected them."},
	{ID: ctadmin.MetricBootstrapAuthenticated, Name: "ctadmin_bootstrap_authenticated_total", Help: "Bootstraps that found a live session."},
	{ID: ctadmin.MetricBootstrapAnonymous, Name: "ctadmin_bootstrap_anonymous_total", Help: "Bootstraps that found no session."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: ctadmin.MetricRequestLatency, Name: "ctadmin_request_latency_seconds", Help: "Backend round-trip latency."},
	{ID: ctadmin.MetricRenewalLatency, Name: "ctadmin_renewal_latency_seconds", Help: "Session renewal latency."},
}

// The counter of audit events lost to dispatcher backpressure.
const (
	AuditDroppedName = "ctadmin_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// client bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// flatten a histogram into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
