package ctadmin

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one client counter or histogram.
type MetricID uint16

const (
	// MetricRequest counts every wire round trip, retries included.
	MetricRequest MetricID = iota
	// MetricRequestFailure counts round trips that ended in a non-2xx status.
	MetricRequestFailure
	// MetricTransportError counts round trips that got no response at all.
	MetricTransportError
	// MetricUnauthorized counts 401 responses.
	MetricUnauthorized
	// MetricRenewalSuccess counts completed session renewals.
	MetricRenewalSuccess
	// MetricRenewalFailure counts failed session renewals.
	MetricRenewalFailure
	// MetricRecoveryRetried counts requests re-dispatched after a renewal.
	MetricRecoveryRetried
	// MetricRecoveryRenewFailed counts recoveries abandoned because renewal failed.
	MetricRecoveryRenewFailed
	// MetricRecoveryRedirected counts token resets after a rejected bearer token.
	MetricRecoveryRedirected
	// MetricLoginSuccess counts successful sign-ins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected sign-ins.
	MetricLoginFailure
	// MetricLogout counts sign-outs.
	MetricLogout
	// MetricSessionExpired counts sessions dropped after the backend rejected them.
	MetricSessionExpired
	// MetricBootstrapAuthenticated counts bootstraps that found a live session.
	MetricBootstrapAuthenticated
	// MetricBootstrapAnonymous counts bootstraps that found none.
	MetricBootstrapAnonymous
	// MetricRequestLatency is the round-trip latency histogram.
	MetricRequestLatency
	// MetricRenewalLatency is the session renewal latency histogram.
	MetricRenewalLatency
	metricIDCount
)

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

// Metrics is a set of lock-free counters and fixed-bucket histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every metric.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns Metrics configured by cfg.
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

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isHistogram(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(histogramIDs)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range histogramIDs {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

var histogramIDs = [...]MetricID{MetricRequestLatency, MetricRenewalLatency}

func isHistogram(id MetricID) bool {
	return id == MetricRequestLatency || id == MetricRenewalLatency
}

// bucketIndex maps d onto the upper bounds 5, 10, 25, 50, 100, 250, 500 ms
// and +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
