package manager

import "sync/atomic"

// memoryAccountant tracks estimated memory against a configurable limit.
// Counters are atomic and eventually consistent for display; admission
// decisions read them racily, which may overshoot the limit by at most one
// in-flight load.
type memoryAccountant struct {
	used  atomic.Uint64
	peak  atomic.Uint64
	limit atomic.Uint64
}

func (a *memoryAccountant) add(n uint64) {
	used := a.used.Add(n)
	for {
		peak := a.peak.Load()
		if used <= peak || a.peak.CompareAndSwap(peak, used) {
			return
		}
	}
}

func (a *memoryAccountant) sub(n uint64) {
	for {
		used := a.used.Load()
		next := uint64(0)
		if used > n {
			next = used - n
		}
		if a.used.CompareAndSwap(used, next) {
			return
		}
	}
}

// atLimit reports whether current usage already meets or exceeds the limit.
func (a *memoryAccountant) atLimit() bool {
	limit := a.limit.Load()
	return limit > 0 && a.used.Load() >= limit
}

// wouldExceed reports whether adding n would cross the limit.
func (a *memoryAccountant) wouldExceed(n uint64) bool {
	limit := a.limit.Load()
	return limit > 0 && a.used.Load()+n > limit
}

// healthy reports whether usage is under the limit (or unlimited).
func (a *memoryAccountant) healthy() bool {
	limit := a.limit.Load()
	return limit == 0 || a.used.Load() < limit
}

func (a *memoryAccountant) setLimit(n uint64) { a.limit.Store(n) }

// resetPeak pulls the peak down to current usage.
func (a *memoryAccountant) resetPeak() { a.peak.Store(a.used.Load()) }
