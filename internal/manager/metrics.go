package manager

import (
	"sync/atomic"
	"time"

	"inferd/pkg/types"
)

// runtimeMetrics aggregates completed-generation counters. Memory numbers
// live in the accountant; pool numbers are read live at snapshot time.
type runtimeMetrics struct {
	requests     atomic.Uint64
	tokens       atomic.Uint64
	generationMS atomic.Uint64
}

func (rm *runtimeMetrics) record(tokens int, dur time.Duration) {
	rm.requests.Add(1)
	rm.tokens.Add(uint64(tokens))
	ms := dur.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	rm.generationMS.Add(uint64(ms))
}

// GetMetrics returns a point-in-time snapshot of the runtime counters.
func (m *Manager) GetMetrics() types.MetricsSnapshot {
	snap := types.MetricsSnapshot{
		TotalRequests:         m.metrics.requests.Load(),
		TotalTokensGenerated:  m.metrics.tokens.Load(),
		TotalGenerationTimeMS: m.metrics.generationMS.Load(),
		MemoryUsageBytes:      m.accountant.used.Load(),
		PeakMemoryBytes:       m.accountant.peak.Load(),
	}
	m.mu.RLock()
	for _, lm := range m.models {
		size, avail := lm.pool.counts()
		snap.PoolSize += size
		snap.ActiveContexts += size - avail
	}
	m.mu.RUnlock()
	return snap
}

// ResetMetrics zeroes the aggregate counters. Peak memory collapses to
// current usage; accounted usage itself is untouched so unloads stay
// balanced.
func (m *Manager) ResetMetrics() {
	m.metrics.requests.Store(0)
	m.metrics.tokens.Store(0)
	m.metrics.generationMS.Store(0)
	m.accountant.resetPeak()
}

// SetMemoryLimit adjusts the accountant limit at runtime. 0 disables it.
func (m *Manager) SetMemoryLimit(bytes uint64) { m.accountant.setLimit(bytes) }

// CheckMemoryHealth reports whether estimated usage is under the limit.
func (m *Manager) CheckMemoryHealth() bool { return m.accountant.healthy() }
