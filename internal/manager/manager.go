package manager

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"inferd/internal/engine"
)

// Manager owns the model registry, the per-model context pools, the
// streaming session table, and the batch queue. Construct one per process
// with New and tear it down with Cleanup.
type Manager struct {
	mu     sync.RWMutex
	models map[string]*loadedModel
	closed bool

	eng         engine.Engine
	engineReady bool

	cfg        Config
	publisher  EventPublisher
	accountant memoryAccountant
	metrics    runtimeMetrics

	sessions  sessionTable
	streamSem *semaphore.Weighted

	batch batchState

	janitorOn   bool
	janitorStop chan struct{}
	janitorDone chan struct{}

	startTime time.Time
}

// New constructs a Manager over the given engine. The engine is initialized
// once here; a failure is logged and remembered, and later loads retry it
// before failing with an engine-load error.
func New(eng engine.Engine, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		models:    make(map[string]*loadedModel),
		eng:       eng,
		cfg:       cfg,
		publisher: cfg.Publisher,
		streamSem: semaphore.NewWeighted(int64(cfg.StreamWorkers)),
		startTime: time.Now(),
	}
	m.accountant.setLimit(cfg.MemoryLimitBytes)
	if err := eng.Init(); err != nil {
		zlog.Warn().Err(err).Msg("engine init failed; loads will retry")
	} else {
		m.engineReady = true
	}
	m.startBatchWorkers()
	return m
}

// ensureEngineLocked retries backend init after an earlier failure.
// Callers hold m.mu.
func (m *Manager) ensureEngineLocked() error {
	if m.engineReady {
		return nil
	}
	if err := m.eng.Init(); err != nil {
		return err
	}
	m.engineReady = true
	return nil
}

// IsModelLoaded reports whether name refers to a loaded, non-draining model.
func (m *Manager) IsModelLoaded(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lm := m.models[name]
	return lm != nil && !lm.draining.Load()
}

// GetLoadedModelCount returns the number of loaded models.
func (m *Manager) GetLoadedModelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.models)
}

// GetLoadedModelNames returns the loaded model names, sorted.
func (m *Manager) GetLoadedModelNames() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.models))
	for name := range m.models {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Ready reports whether the runtime can serve: the engine is initialized
// and at least one model is loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.engineReady && len(m.models) > 0
}

// Cleanup force-tears-down every session, batch worker, pool, and model.
// The Manager must not be used afterwards. Safe to call more than once.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.stopJanitor()
	m.stopAllSessions()
	m.stopBatchWorkers()

	m.mu.Lock()
	victims := make([]*loadedModel, 0, len(m.models))
	for _, lm := range m.models {
		victims = append(victims, lm)
	}
	m.models = make(map[string]*loadedModel)
	m.mu.Unlock()

	for _, lm := range victims {
		if !lm.draining.CompareAndSwap(false, true) {
			// An in-flight UnloadModel owns this teardown; give it a
			// bounded window and move on either way.
			select {
			case <-lm.gone:
			case <-time.After(m.cfg.DrainTimeout):
				zlog.Warn().Str("model", lm.name).Msg("unload still in flight at cleanup")
			}
			continue
		}
		lm.pool.destroy()
		freeModelHandle(lm.name, lm.model)
		m.accountant.sub(lm.memoryBytes)
		close(lm.gone)
		m.publisher.Publish(Event{Name: "model_unload_done", Model: lm.name, Fields: map[string]any{"forced": true}})
	}
	m.eng.Close()
	zlog.Info().Msg("runtime cleaned up")
}

// freeModelHandle frees the engine handle, converting a backend fault into
// a log line rather than a crash.
func freeModelHandle(name string, h engine.Model) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Str("model", name).Any("fault", r).Msg("engine fault freeing model")
		}
	}()
	h.Free()
}

// Uptime reports how long this Manager has existed.
func (m *Manager) Uptime() time.Duration { return time.Since(m.startTime) }

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
