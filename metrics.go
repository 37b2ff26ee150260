package balldevice

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

// LatencyBuckets defines the eject-attempt latency histogram buckets in
// nanoseconds, spanning 1ms to ~40s (covering fast target confirmations
// through the slowest realistic timeout/retry chains).
var LatencyBuckets = []uint64{
	1_000_000,     // 1ms
	10_000_000,    // 10ms
	100_000_000,   // 100ms
	500_000_000,   // 500ms
	1_000_000_000, // 1s
	5_000_000_000, // 5s
	10_000_000_000,
	40_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks eject-engine and switch-mapper statistics for one
// machine (all devices share one Metrics instance, distinguished by
// device name in the per-device maps).
type Metrics struct {
	EjectAttempts    atomic.Uint64
	EjectSuccesses   atomic.Uint64
	EjectFailures    atomic.Uint64
	EjectPermanent   atomic.Uint64
	SwitchTransitions atomic.Uint64
	CountsObserved   atomic.Uint64

	TotalLatencyNs atomic.Uint64
	LatencySamples atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64

	mu          sync.Mutex
	ballsByName map[string]int
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{ballsByName: make(map[string]int)}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordEjectAttempt records an eject attempt being published.
func (m *Metrics) RecordEjectAttempt() {
	m.EjectAttempts.Add(1)
}

// RecordEjectSuccess records a successful eject and its end-to-end latency.
func (m *Metrics) RecordEjectSuccess(latencyNs uint64) {
	m.EjectSuccesses.Add(1)
	m.recordLatency(latencyNs)
}

// RecordEjectFailure records a failed eject attempt; permanent indicates
// the retry budget was exhausted on this failure.
func (m *Metrics) RecordEjectFailure(permanent bool) {
	m.EjectFailures.Add(1)
	if permanent {
		m.EjectPermanent.Add(1)
	}
}

// RecordSwitchTransition records a debounced switch edge.
func (m *Metrics) RecordSwitchTransition() {
	m.SwitchTransitions.Add(1)
}

// RecordCount records a device's latest valid ball count.
func (m *Metrics) RecordCount(device string, balls int) {
	m.CountsObserved.Add(1)
	m.mu.Lock()
	m.ballsByName[device] = balls
	m.mu.Unlock()
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.LatencySamples.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the machine as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read freely.
type MetricsSnapshot struct {
	EjectAttempts     uint64
	EjectSuccesses    uint64
	EjectFailures     uint64
	EjectPermanent    uint64
	SwitchTransitions uint64
	CountsObserved    uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyHistogram [numLatencyBuckets]uint64

	BallsByDevice map[string]int
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		EjectAttempts:     m.EjectAttempts.Load(),
		EjectSuccesses:    m.EjectSuccesses.Load(),
		EjectFailures:     m.EjectFailures.Load(),
		EjectPermanent:    m.EjectPermanent.Load(),
		SwitchTransitions: m.SwitchTransitions.Load(),
		CountsObserved:    m.CountsObserved.Load(),
		BallsByDevice:     make(map[string]int),
	}

	total := m.TotalLatencyNs.Load()
	samples := m.LatencySamples.Load()
	if samples > 0 {
		snap.AvgLatencyNs = total / samples
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	m.mu.Lock()
	for k, v := range m.ballsByName {
		snap.BallsByDevice[k] = v
	}
	m.mu.Unlock()

	return snap
}

// Observer implementations

// MetricsObserver implements interfaces.Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveEjectAttempt(device string, balls int) {
	o.metrics.RecordEjectAttempt()
}

func (o *MetricsObserver) ObserveEjectSuccess(device string, balls int, latencyNs uint64) {
	o.metrics.RecordEjectSuccess(latencyNs)
}

func (o *MetricsObserver) ObserveEjectFailure(device string, permanent bool) {
	o.metrics.RecordEjectFailure(permanent)
}

func (o *MetricsObserver) ObserveSwitchTransition(device, switchName string, active bool) {
	o.metrics.RecordSwitchTransition()
}

func (o *MetricsObserver) ObserveCount(device string, balls int) {
	o.metrics.RecordCount(device, balls)
}

// NoOpObserver discards all observations.
type NoOpObserver struct{}

func (NoOpObserver) ObserveEjectAttempt(string, int)            {}
func (NoOpObserver) ObserveEjectSuccess(string, int, uint64)    {}
func (NoOpObserver) ObserveEjectFailure(string, bool)           {}
func (NoOpObserver) ObserveSwitchTransition(string, string, bool) {}
func (NoOpObserver) ObserveCount(string, int)                   {}

// Compile-time interface checks
var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = (*NoOpObserver)(nil)
)
