package manager

import (
	"fmt"
	"sync"
	"time"

	"inferd/internal/engine"
)

// Sampling chain attached to every pooled context: top-k, then top-p, then
// temperature, then a seeded distribution draw.
const (
	samplerTopK        = 40
	samplerTopP        = 0.9
	samplerMinKeep     = 1
	samplerTemperature = 0.8
	samplerSeed        = 12345
)

// contextPool is a bounded per-model cache of execution contexts with
// idle-time eviction. Entries move between the idle slice and the caller
// holding them; size counts every live entry either way.
type contextPool struct {
	name      string
	model     engine.Model
	ctxParams engine.ContextParams

	mu      sync.Mutex
	idle    []*poolEntry
	size    int
	maxSize int
	closed  bool

	// released carries a wakeup per release for drain waiters.
	released chan struct{}
}

func newContextPool(name string, model engine.Model, ctxParams engine.ContextParams, maxSize int) *contextPool {
	return &contextPool{
		name:      name,
		model:     model,
		ctxParams: ctxParams,
		maxSize:   maxSize,
		released:  make(chan struct{}, 1),
	}
}

// acquire returns an idle entry, or creates one if the pool is under its
// maximum, or fails with a capacity-exhaustion error. The entry creation
// happens outside the lock; the slot is reserved first so concurrent
// acquires never overshoot maxSize.
func (p *contextPool) acquire() (*poolEntry, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrModelNotFound(p.name)
	}
	if n := len(p.idle); n > 0 {
		e := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return e, nil
	}
	if p.size >= p.maxSize {
		p.mu.Unlock()
		return nil, ErrCapacityExhausted(p.name)
	}
	p.size++
	p.mu.Unlock()

	e, err := p.newEntry()
	if err != nil {
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		p.signalReleased()
		return nil, err
	}
	return e, nil
}

func (p *contextPool) newEntry() (entry *poolEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entry = nil
			err = ErrEngineLoad(p.name, fmt.Errorf("engine fault creating context: %v", r))
		}
	}()
	ctx, err := p.model.NewContext(p.ctxParams)
	if err != nil {
		return nil, ErrEngineLoad(p.name, err)
	}
	sampler, err := p.model.NewSampler(engine.SamplerParams{
		TopK:        samplerTopK,
		TopP:        samplerTopP,
		MinKeep:     samplerMinKeep,
		Temperature: samplerTemperature,
		Seed:        samplerSeed,
	})
	if err != nil {
		ctx.Free()
		return nil, ErrEngineLoad(p.name, err)
	}
	return &poolEntry{ctx: ctx, sampler: sampler, lastUsed: time.Now()}, nil
}

// release returns an entry to the idle set and wakes drain waiters. Called
// exactly once per successful acquire, on every path. Entries released to a
// closed pool are freed on the spot.
func (p *contextPool) release(e *poolEntry) {
	p.mu.Lock()
	e.lastUsed = time.Now()
	e.uses++
	if p.closed {
		p.size--
		p.mu.Unlock()
		e.free()
		p.signalReleased()
		return
	}
	p.idle = append(p.idle, e)
	p.mu.Unlock()
	p.signalReleased()
}

func (p *contextPool) signalReleased() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}

// cleanupExpired frees idle entries whose idle duration reached ttl. Entries
// currently held by callers are never touched. Returns the evicted count.
func (p *contextPool) cleanupExpired(ttl time.Duration, now time.Time) int {
	var victims []*poolEntry
	p.mu.Lock()
	if !p.closed {
		kept := p.idle[:0]
		for _, e := range p.idle {
			if now.Sub(e.lastUsed) >= ttl {
				victims = append(victims, e)
				p.size--
			} else {
				kept = append(kept, e)
			}
		}
		p.idle = kept
	}
	p.mu.Unlock()
	for _, e := range victims {
		e.free()
	}
	return len(victims)
}

// counts reports (size, available): size == available means nothing in use.
func (p *contextPool) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size, len(p.idle)
}

// drain waits until every entry is idle, or the timeout elapses. Each
// release sends a wakeup, so there is no interval polling.
func (p *contextPool) drain(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		p.mu.Lock()
		idle := p.size == len(p.idle)
		p.mu.Unlock()
		if idle {
			return true
		}
		select {
		case <-p.released:
		case <-deadline.C:
			return false
		}
	}
}

// destroy frees every idle entry and closes the pool. Entries still held
// are freed when their holder releases them.
func (p *contextPool) destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	victims := p.idle
	p.idle = nil
	p.size -= len(victims)
	p.mu.Unlock()
	for _, e := range victims {
		e.free()
	}
}
