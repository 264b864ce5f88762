package internaldefs

import (
	"github.com/MrEthical07/authflow"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authflow.MetricSessionSignIn, Name: "authflow_session_sign_in_total", Help: "Sign-in notifications mirrored into the session."},
	{ID: authflow.MetricSessionSignOut, Name: "authflow_session_sign_out_total", Help: "Sign-out notifications mirrored into the session."},
	{ID: authflow.MetricSessionTokenFailure, Name: "authflow_session_token_failure_total", Help: "Failed identity token fetches."},
	{ID: authflow.MetricSessionPersistFailure, Name: "authflow_session_persist_failure_total", Help: "Failed session writes."},
	{ID: authflow.MetricSessionClearFailure, Name: "authflow_session_clear_failure_total", Help: "Failed session removals."},
	{ID: authflow.MetricSessionResync, Name: "authflow_session_resync_total", Help: "Explicit session resync runs."},
	{ID: authflow.MetricResetValidationFailure, Name: "authflow_reset_validation_failure_total", Help: "Reset submissions blocked by validation."},
	{ID: authflow.MetricResetEmailSent, Name: "authflow_reset_email_sent_total", Help: "Password reset emails requested."},
	{ID: authflow.MetricResetEmailFailure, Name: "authflow_reset_email_failure_total", Help: "Failed password reset email requests."},
	{ID: authflow.MetricOTPSent, Name: "authflow_otp_sent_total", Help: "Phone verification codes requested."},
	{ID: authflow.MetricOTPFailure, Name: "authflow_otp_failure_total", Help: "Failed phone verification code requests."},
	{ID: authflow.MetricChallengeFailure, Name: "authflow_challenge_failure_total", Help: "Human-verification challenges that did not resolve."},
	{ID: authflow.MetricResetRateLimited, Name: "authflow_reset_rate_limited_total", Help: "Reset submissions rejected by the target throttle."},
	{ID: authflow.MetricNavigationFailure, Name: "authflow_navigation_failure_total", Help: "Failed screen navigations."},
}

var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricSyncLatency, Name: "authflow_sync_latency_seconds", Help: "Auth-change notification handling latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authflow_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// in-process bucket is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

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

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
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
