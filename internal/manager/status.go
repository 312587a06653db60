package manager

import (
	"sort"
	"time"

	"inferd/pkg/types"
)

// Status assembles the full diagnostic snapshot served by the HTTP layer.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	models := make([]types.ModelStatus, 0, len(m.models))
	for _, lm := range m.models {
		models = append(models, modelStatus(lm))
	}
	m.mu.RUnlock()
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	return types.StatusResponse{
		Models:           models,
		MemoryUsedBytes:  m.accountant.used.Load(),
		MemoryPeakBytes:  m.accountant.peak.Load(),
		MemoryLimitBytes: m.accountant.limit.Load(),
		ActiveSessions:   m.sessions.count(),
		PendingBatch:     m.batch.pendingCount(),
		UptimeSeconds:    int64(m.Uptime().Seconds()),
		ServerTimeUnix:   time.Now().Unix(),
	}
}

// GetStatus reports one model's live state.
func (m *Manager) GetStatus(name string) (types.ModelStatus, error) {
	m.mu.RLock()
	lm := m.models[name]
	m.mu.RUnlock()
	if lm == nil {
		return types.ModelStatus{}, ErrModelNotFound(name)
	}
	return modelStatus(lm), nil
}

func modelStatus(lm *loadedModel) types.ModelStatus {
	size, avail := lm.pool.counts()
	return types.ModelStatus{
		Name:           lm.name,
		RefCount:       lm.refs.Load(),
		PoolSize:       size,
		PoolAvailable:  avail,
		MemoryMB:       int64(lm.memoryBytes / (1 << 20)),
		LastAccessUnix: time.Unix(0, lm.lastAccess.Load()).Unix(),
		ContextSize:    lm.config.ContextSize,
		Draining:       lm.draining.Load(),
	}
}
