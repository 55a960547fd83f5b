package internaldefs

import (
	"math"

	"github.com/geochat/tokenauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// NotifyDroppedName is the counter for reset codes dropped by the async dispatcher.
const NotifyDroppedName = "tokenauth_notify_dropped_total"

// NotifyDroppedHelp describes NotifyDroppedName.
const NotifyDroppedHelp = "Reset code notifications dropped because the dispatch queue was full."

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Logins that issued a token pair."},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Refreshes that minted an access token."},
	{ID: tokenauth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Refreshes rejected for an invalid refresh token."},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Logouts."},
	{ID: tokenauth.MetricRegisterSuccess, Name: "tokenauth_register_success_total", Help: "Accounts created through registration."},
	{ID: tokenauth.MetricPasswordResetRequest, Name: "tokenauth_password_reset_request_total", Help: "Accepted password reset requests."},
	{ID: tokenauth.MetricPasswordResetRateLimited, Name: "tokenauth_password_reset_rate_limited_total", Help: "Password reset requests denied by the throttle."},
	{ID: tokenauth.MetricPasswordResetCodeIssued, Name: "tokenauth_password_reset_code_issued_total", Help: "Reset codes stored for a known user."},
	{ID: tokenauth.MetricPasswordResetConfirmSuccess, Name: "tokenauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: tokenauth.MetricPasswordResetConfirmFailure, Name: "tokenauth_password_reset_confirm_failure_total", Help: "Password resets rejected for an invalid or expired code."},
	{ID: tokenauth.MetricNotifyFailure, Name: "tokenauth_notify_failure_total", Help: "Reset codes the notifier failed to deliver."},
	{ID: tokenauth.MetricStoreFailure, Name: "tokenauth_store_failure_total", Help: "Operations failed by a credential store outage."},
	{ID: tokenauth.MetricEdgeRejected, Name: "tokenauth_edge_rejected_total", Help: "Requests rejected by the edge filter."},
	{ID: tokenauth.MetricInternalRejected, Name: "tokenauth_internal_rejected_total", Help: "Requests rejected by the internal filter."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricValidateLatency, Name: "tokenauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the bucket upper bounds in seconds. They match the engine's
// microsecond buckets; the last one is +Inf.
var HistogramBounds = [8]float64{
	0.00005,
	0.0001,
	0.00025,
	0.0005,
	0.001,
	0.005,
	0.025,
	math.Inf(1),
}

// HistogramBoundSuffix names each bound for exporters that need one instrument per bucket.
var HistogramBoundSuffix = [8]string{
	"0_00005",
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_005",
	"0_025",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero filling missing buckets.
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
