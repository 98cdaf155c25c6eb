package presence

import (
	"sort"
	"sync"
	"time"
)

// DisconnectReason is one recent disconnect with its timestamp.
type DisconnectReason struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// MetricsSnapshot is a point-in-time view of relay health, served by
// the admin metrics endpoint. Observability only, never correctness.
type MetricsSnapshot struct {
	ConnectionsTotal        int64              `json:"connectionsTotal"`
	DisconnectsTotal        int64              `json:"disconnectsTotal"`
	CurrentConnections      int                `json:"currentConnections"`
	AvgConnectionDurationMs *int64             `json:"avgConnectionDurationMs"`
	P95LatencyMs            *int64             `json:"p95LatencyMs"`
	DisconnectReasons       []DisconnectReason `json:"disconnectReasons"`
}

// Metrics accumulates connection counts, durations, and round-trip
// latency samples in capped rolling windows.
type Metrics struct {
	mu sync.Mutex

	connectionsTotal int64
	disconnectsTotal int64
	current          int

	maxLatencies   int
	maxDisconnects int

	durationsMs []int64
	latenciesMs []int64
	reasons     []DisconnectReason
}

// NewMetrics creates a Metrics with the given window caps.
func NewMetrics(maxLatencies, maxDisconnects int) *Metrics {
	if maxLatencies <= 0 {
		maxLatencies = 1000
	}
	if maxDisconnects <= 0 {
		maxDisconnects = 200
	}
	return &Metrics{
		maxLatencies:   maxLatencies,
		maxDisconnects: maxDisconnects,
	}
}

// ConnOpened records a new connection.
func (m *Metrics) ConnOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionsTotal++
	m.current++
}

// ConnClosed records a disconnect with its duration and reason.
func (m *Metrics) ConnClosed(duration time.Duration, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectsTotal++
	if m.current > 0 {
		m.current--
	}
	m.durationsMs = appendCapped(m.durationsMs, duration.Milliseconds(), m.maxDisconnects)
	m.reasons = append(m.reasons, DisconnectReason{Reason: reason, At: time.Now()})
	if len(m.reasons) > m.maxDisconnects {
		m.reasons = m.reasons[len(m.reasons)-m.maxDisconnects:]
	}
}

// RecordLatency stores one round-trip sample. Negative samples (clock
// skew) are discarded.
func (m *Metrics) RecordLatency(rtt time.Duration) {
	ms := rtt.Milliseconds()
	if ms < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latenciesMs = appendCapped(m.latenciesMs, ms, m.maxLatencies)
}

// Snapshot returns the current metrics view. The p95 is computed over
// the most recent 500 latency samples.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		ConnectionsTotal:   m.connectionsTotal,
		DisconnectsTotal:   m.disconnectsTotal,
		CurrentConnections: m.current,
	}

	if len(m.durationsMs) > 0 {
		var sum int64
		for _, d := range m.durationsMs {
			sum += d
		}
		avg := sum / int64(len(m.durationsMs))
		snap.AvgConnectionDurationMs = &avg
	}

	recent := m.latenciesMs
	if len(recent) > 500 {
		recent = recent[len(recent)-500:]
	}
	if len(recent) > 0 {
		sorted := make([]int64, len(recent))
		copy(sorted, recent)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		idx := int(float64(len(sorted)) * 0.95)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		p95 := sorted[idx]
		snap.P95LatencyMs = &p95
	}

	reasons := m.reasons
	if len(reasons) > 20 {
		reasons = reasons[len(reasons)-20:]
	}
	snap.DisconnectReasons = append([]DisconnectReason(nil), reasons...)
	return snap
}

func appendCapped(s []int64, v int64, limit int) []int64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
