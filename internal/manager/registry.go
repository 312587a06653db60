package manager

import (
	"context"
	"fmt"
	"time"

	"inferd/internal/common/fsutil"
	"inferd/internal/engine"
	"inferd/pkg/types"
)

// LoadModel loads a model file under the given name. Loading an
// already-loaded name is a no-op success. The registry lock is held across
// the engine call, so concurrent loads serialize; this keeps the
// empty-to-nonempty janitor handoff and the name-uniqueness invariant
// trivial.
func (m *Manager) LoadModel(ctx context.Context, name string, cfg types.ModelConfig) error {
	if name == "" {
		return ErrModelNotFound("(unnamed)")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrModelNotFound(name)
	}
	if lm := m.models[name]; lm != nil && !lm.draining.Load() {
		return nil
	}
	if err := m.ensureEngineLocked(); err != nil {
		m.publisher.Publish(Event{Name: "model_load_reject", Model: name, Fields: map[string]any{"error": err.Error()}})
		return ErrEngineLoad(name, err)
	}
	if m.accountant.atLimit() {
		m.publisher.Publish(Event{Name: "model_load_reject", Model: name, Fields: map[string]any{"reason": "memory"}})
		return ErrMemoryLimitExceeded(name, m.accountant.used.Load(), 0, m.accountant.limit.Load())
	}
	path, err := fsutil.ExpandHome(cfg.Path)
	if err != nil || path == "" || !fsutil.RegularFile(path) {
		m.publisher.Publish(Event{Name: "model_load_reject", Model: name, Fields: map[string]any{"reason": "file"}})
		return ErrModelFileNotFound(cfg.Path)
	}
	cfg.Path = path

	m.publisher.Publish(Event{Name: "model_load_start", Model: name, Fields: map[string]any{"path": path}})
	zlog.Info().Str("model", name).Str("path", path).Msg("loading model")

	handle, err := loadModelHandle(m.eng, path, cfg)
	if err != nil {
		m.publisher.Publish(Event{Name: "model_load_reject", Model: name, Fields: map[string]any{"error": err.Error()}})
		return ErrEngineLoad(name, err)
	}

	memBytes := handle.NumParams() * bytesPerParameter
	if m.accountant.wouldExceed(memBytes) {
		freeModelHandle(name, handle)
		m.publisher.Publish(Event{Name: "model_load_reject", Model: name, Fields: map[string]any{"reason": "memory"}})
		return ErrMemoryLimitExceeded(name, m.accountant.used.Load(), memBytes, m.accountant.limit.Load())
	}
	m.accountant.add(memBytes)

	lm := &loadedModel{
		name:        name,
		model:       handle,
		config:      cfg,
		memoryBytes: memBytes,
		loadedAt:    time.Now(),
		refsIdle:    make(chan struct{}, 1),
		gone:        make(chan struct{}),
	}
	lm.pool = newContextPool(name, handle, engine.ContextParams{
		ContextSize: cfg.ContextSize,
		BatchSize:   cfg.BatchSize,
		Threads:     cfg.Threads,
		Embeddings:  cfg.Embeddings,
	}, m.cfg.MaxContextsPerModel)
	lm.touch()

	wasEmpty := len(m.models) == 0
	m.models[name] = lm
	if wasEmpty {
		m.startJanitorLocked()
	}

	m.publisher.Publish(Event{Name: "model_load_ready", Model: name, Fields: map[string]any{"memory_bytes": memBytes}})
	zlog.Info().Str("model", name).Uint64("memory_bytes", memBytes).Msg("model ready")
	return nil
}

// loadModelHandle calls into the engine with a panic guard.
func loadModelHandle(eng engine.Engine, path string, cfg types.ModelConfig) (handle engine.Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = fmt.Errorf("engine fault: %v", r)
		}
	}()
	return eng.LoadModel(path, engine.ModelParams{
		ContextSize: cfg.ContextSize,
		BatchSize:   cfg.BatchSize,
		Threads:     cfg.Threads,
		GPULayers:   cfg.GPULayers,
		Seed:        cfg.Seed,
		UseMmap:     cfg.UseMmap,
		UseMlock:    cfg.UseMlock,
		Embeddings:  cfg.Embeddings,
		F16Memory:   cfg.F16Memory,
	})
}

// UnloadModel drains and removes a loaded model. It marks the model
// draining so new leases are refused, waits for the reference count to hit
// zero (each release signals the waiter; ctx aborts the wait), then waits a
// bounded time for the pool to go idle. The pool is discarded either way:
// unload latency is bounded at the price of force-freeing contexts that a
// misbehaving caller still holds.
func (m *Manager) UnloadModel(ctx context.Context, name string) error {
	if name == "" {
		return ErrModelNotFound("(unnamed)")
	}
	m.mu.RLock()
	lm := m.models[name]
	m.mu.RUnlock()
	if lm == nil {
		return ErrModelNotFound(name)
	}
	if !lm.draining.CompareAndSwap(false, true) {
		// Another unload owns this model's teardown; wait for it.
		select {
		case <-lm.gone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.publisher.Publish(Event{Name: "model_unload_start", Model: name, Fields: map[string]any{}})

	for lm.refs.Load() > 0 {
		select {
		case <-lm.refsIdle:
		case <-ctx.Done():
			// Leave the model usable again; the caller gave up.
			lm.draining.Store(false)
			return ctx.Err()
		}
	}

	if !lm.pool.drain(m.cfg.DrainTimeout) {
		size, avail := lm.pool.counts()
		m.publisher.Publish(Event{Name: "model_unload_timeout", Model: name, Fields: map[string]any{"size": size, "available": avail}})
		zlog.Warn().Str("model", name).Int("in_use", size-avail).Msg("pool drain timed out; discarding anyway")
	}
	lm.pool.destroy()
	freeModelHandle(lm.name, lm.model)
	m.accountant.sub(lm.memoryBytes)

	m.mu.Lock()
	if m.models[name] == lm {
		delete(m.models, name)
	}
	m.mu.Unlock()
	close(lm.gone)

	m.publisher.Publish(Event{Name: "model_unload_done", Model: name, Fields: map[string]any{}})
	zlog.Info().Str("model", name).Msg("model unloaded")
	return nil
}

// acquireModel takes a counted lease on a loaded model. Every operation
// that touches a model's contexts holds one until it finishes.
func (m *Manager) acquireModel(name string) (*modelLease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lm := m.models[name]
	if lm == nil || lm.draining.Load() {
		return nil, ErrModelNotFound(name)
	}
	lm.refs.Add(1)
	lm.touch()
	return &modelLease{lm: lm}, nil
}
