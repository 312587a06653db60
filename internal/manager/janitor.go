package manager

import (
	"time"
)

// startJanitorLocked begins the idle-context sweeper. Called under m.mu on
// the registry's empty-to-nonempty transition; the janitor then runs until
// Cleanup. An empty registry between loads just makes the sweeps cheap.
func (m *Manager) startJanitorLocked() {
	if m.janitorOn {
		return
	}
	m.janitorOn = true
	m.janitorStop = make(chan struct{})
	m.janitorDone = make(chan struct{})
	go m.janitorLoop(m.janitorStop, m.janitorDone)
	zlog.Debug().Dur("interval", m.cfg.JanitorInterval).Msg("janitor started")
}

func (m *Manager) janitorLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sweepIdleContexts(time.Now())
		}
	}
}

// sweepIdleContexts walks every pool and evicts idle contexts past their
// TTL. In-use contexts are never touched.
func (m *Manager) sweepIdleContexts(now time.Time) int {
	m.mu.RLock()
	pools := make([]*contextPool, 0, len(m.models))
	for _, lm := range m.models {
		pools = append(pools, lm.pool)
	}
	m.mu.RUnlock()

	var total int
	for _, p := range pools {
		n := p.cleanupExpired(m.cfg.ContextTTL, now)
		if n == 0 {
			continue
		}
		total += n
		m.publisher.Publish(Event{Name: "context_evicted", Model: p.name, Fields: map[string]any{"count": n}})
		zlog.Debug().Str("model", p.name).Int("count", n).Msg("idle contexts evicted")
	}
	return total
}

// TriggerContextCleanup runs one sweep immediately, outside the janitor's
// schedule, and returns how many contexts were evicted.
func (m *Manager) TriggerContextCleanup() int {
	return m.sweepIdleContexts(time.Now())
}

func (m *Manager) stopJanitor() {
	m.mu.Lock()
	on := m.janitorOn
	stop, done := m.janitorStop, m.janitorDone
	m.janitorOn = false
	m.mu.Unlock()
	if !on {
		return
	}
	close(stop)
	<-done
}
