package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// loadedModel is one live model in the registry. The engine handle and the
// pool are exclusively owned and freed exactly once, at unload.
type loadedModel struct {
	name   string
	model  engine.Model
	config types.ModelConfig
	pool   *contextPool

	memoryBytes uint64
	loadedAt    time.Time

	// refs counts outstanding leases. Unload waits for zero; every release
	// signals refsIdle so the waiter wakes without polling.
	refs     atomic.Int64
	refsIdle chan struct{}

	// draining rejects new leases while an unload is in progress. The
	// goroutine that flips it false->true owns teardown; gone is closed
	// once the model has been torn down and removed.
	draining atomic.Bool
	gone     chan struct{}

	// lastAccess is unix nanos of the most recent lease.
	lastAccess atomic.Int64
}

func (lm *loadedModel) touch() { lm.lastAccess.Store(time.Now().UnixNano()) }

// modelLease is a counted handle to a loaded model. Every generation,
// embedding, and batch operation routes through one so unload can observe
// quiescence. Release is idempotent.
type modelLease struct {
	lm   *loadedModel
	once sync.Once
}

func (l *modelLease) Release() {
	l.once.Do(func() {
		l.lm.refs.Add(-1)
		select {
		case l.lm.refsIdle <- struct{}{}:
		default:
		}
	})
}

// poolEntry wraps one execution context plus its sampler. An entry is either
// in the pool's idle slice or held by exactly one caller, never both.
type poolEntry struct {
	ctx     engine.Context
	sampler engine.Sampler

	lastUsed time.Time
	uses     uint64
}

func (e *poolEntry) free() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Any("fault", r).Msg("engine fault freeing context")
		}
	}()
	if e.sampler != nil {
		e.sampler.Free()
	}
	if e.ctx != nil {
		e.ctx.Free()
	}
}
