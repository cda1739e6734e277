package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricRegisterSuccess counts identities created by Register.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts Register calls rejected for a taken username.
	MetricRegisterDuplicate
	// MetricAuthSuccess counts successful username/password logins.
	MetricAuthSuccess
	// MetricAuthFailure counts rejected username/password logins.
	MetricAuthFailure
	// MetricAccessTokenSuccess counts resolved access tokens.
	MetricAccessTokenSuccess
	// MetricAccessTokenFailure counts unknown or empty access tokens.
	MetricAccessTokenFailure
	// MetricAuthKeySuccess counts matching auth keys.
	MetricAuthKeySuccess
	// MetricAuthKeyFailure counts mismatching auth keys.
	MetricAuthKeyFailure
	// MetricPasswordRehash counts hashes upgraded on login.
	MetricPasswordRehash
	// MetricPasswordChangeSuccess counts completed password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld counts password changes with a wrong current password.
	MetricPasswordChangeInvalidOld
	// MetricPasswordResetRequest counts issued reset tokens.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess counts passwords set through a reset token.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts rejected reset tokens.
	MetricPasswordResetFailure
	// MetricIdentityDeleted counts identities moved to StatusDeleted.
	MetricIdentityDeleted
	// MetricRateLimitAllowed counts requests admitted by the rate limiter.
	MetricRateLimitAllowed
	// MetricRateLimitThrottled counts requests rejected by the rate limiter.
	MetricRateLimitThrottled
	// MetricStoreError counts operations aborted by ErrStoreUnavailable.
	MetricStoreError
	// MetricThrottleLatency is the histogram of Throttle durations.
	MetricThrottleLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:          "register_success",
	MetricRegisterDuplicate:        "register_duplicate",
	MetricAuthSuccess:              "auth_success",
	MetricAuthFailure:              "auth_failure",
	MetricAccessTokenSuccess:       "access_token_success",
	MetricAccessTokenFailure:       "access_token_failure",
	MetricAuthKeySuccess:           "auth_key_success",
	MetricAuthKeyFailure:           "auth_key_failure",
	MetricPasswordRehash:           "password_rehash",
	MetricPasswordChangeSuccess:    "password_change_success",
	MetricPasswordChangeInvalidOld: "password_change_invalid_old",
	MetricPasswordResetRequest:     "password_reset_request",
	MetricPasswordResetSuccess:     "password_reset_success",
	MetricPasswordResetFailure:     "password_reset_failure",
	MetricIdentityDeleted:          "identity_deleted",
	MetricRateLimitAllowed:         "rate_limit_allowed",
	MetricRateLimitThrottled:       "rate_limit_throttled",
	MetricStoreError:               "store_error",
	MetricThrottleLatency:          "throttle_latency",
}

// String returns the snake_case metric name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs returns every defined metric in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

const (
	// HistogramBucketCount is the number of latency buckets in a snapshot.
	HistogramBucketCount = 8
	cacheLineSize        = 64
)

// HistogramBounds are the inclusive upper bounds, in milliseconds, of the
// first HistogramBucketCount-1 buckets. The last bucket is unbounded.
var HistogramBounds = [HistogramBucketCount - 1]float64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [HistogramBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil or disabled *Metrics
// ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

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

// Observe records d in the histogram for id. Only MetricThrottleLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricThrottleLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, HistogramBucketCount)
		for i := 0; i < HistogramBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricThrottleLatency].buckets[i])
		}
		s.Histograms[MetricThrottleLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := float64(d.Milliseconds())
	for i, bound := range HistogramBounds {
		if ms <= bound {
			return i
		}
	}
	return HistogramBucketCount - 1
}
