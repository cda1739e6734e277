package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events lost to dispatcher backpressure.
const AuditDroppedName = "goidentity_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricRegisterSuccess, Name: "goidentity_register_success_total", Help: "Identities created."},
	{ID: goIdentity.MetricRegisterDuplicate, Name: "goidentity_register_duplicate_total", Help: "Registrations rejected for a taken username."},
	{ID: goIdentity.MetricAuthSuccess, Name: "goidentity_auth_success_total", Help: "Successful password logins."},
	{ID: goIdentity.MetricAuthFailure, Name: "goidentity_auth_failure_total", Help: "Failed password logins."},
	{ID: goIdentity.MetricAccessTokenSuccess, Name: "goidentity_access_token_success_total", Help: "Resolved access tokens."},
	{ID: goIdentity.MetricAccessTokenFailure, Name: "goidentity_access_token_failure_total", Help: "Unresolved access tokens."},
	{ID: goIdentity.MetricAuthKeySuccess, Name: "goidentity_auth_key_success_total", Help: "Matching auth keys."},
	{ID: goIdentity.MetricAuthKeyFailure, Name: "goidentity_auth_key_failure_total", Help: "Mismatching auth keys."},
	{ID: goIdentity.MetricPasswordRehash, Name: "goidentity_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: goIdentity.MetricPasswordChangeSuccess, Name: "goidentity_password_change_success_total", Help: "Successful password changes."},
	{ID: goIdentity.MetricPasswordChangeInvalidOld, Name: "goidentity_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "goidentity_password_reset_request_total", Help: "Issued password reset tokens."},
	{ID: goIdentity.MetricPasswordResetSuccess, Name: "goidentity_password_reset_success_total", Help: "Completed password resets."},
	{ID: goIdentity.MetricPasswordResetFailure, Name: "goidentity_password_reset_failure_total", Help: "Rejected password reset tokens."},
	{ID: goIdentity.MetricIdentityDeleted, Name: "goidentity_identity_deleted_total", Help: "Identities moved to deleted."},
	{ID: goIdentity.MetricRateLimitAllowed, Name: "goidentity_rate_limit_allowed_total", Help: "Requests admitted by the rate limiter."},
	{ID: goIdentity.MetricRateLimitThrottled, Name: "goidentity_rate_limit_throttled_total", Help: "Requests throttled by the rate limiter."},
	{ID: goIdentity.MetricStoreError, Name: "goidentity_store_error_total", Help: "Operations aborted by an unavailable store."},
}

var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricThrottleLatency, Name: "goidentity_throttle_latency_seconds", Help: "Throttle latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching
// goIdentity.HistogramBounds.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

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
func NormalizeBuckets(raw []uint64) [goIdentity.HistogramBucketCount]uint64 {
	var out [goIdentity.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [goIdentity.HistogramBucketCount]uint64) [goIdentity.HistogramBucketCount]uint64 {
	var out [goIdentity.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
