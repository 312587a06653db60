package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inferd/pkg/types"
)

// batchRequest is one queued generation.
type batchRequest struct {
	id        types.RequestID
	model     string
	prompt    string
	params    types.GenerationParams
	submitted time.Time
}

// batchState holds the queue and its bookkeeping under one lock, so a
// request is pending or finished, never both and never neither. Results are
// retained until teardown.
type batchState struct {
	mu      sync.Mutex
	pending map[types.RequestID]*batchRequest
	results map[types.RequestID]types.BatchResult

	queue chan *batchRequest
	stop  chan struct{}
	wg    sync.WaitGroup
}

func (b *batchState) addPending(req *batchRequest) {
	b.mu.Lock()
	if b.pending == nil {
		b.pending = make(map[types.RequestID]*batchRequest)
	}
	b.pending[req.id] = req
	b.mu.Unlock()
}

func (b *batchState) dropPending(id types.RequestID) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// complete moves a request from pending to finished in one step.
func (b *batchState) complete(id types.RequestID, res types.BatchResult) {
	b.mu.Lock()
	delete(b.pending, id)
	if b.results == nil {
		b.results = make(map[types.RequestID]types.BatchResult)
	}
	b.results[id] = res
	b.mu.Unlock()
}

func (b *batchState) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func newBatchID() types.RequestID {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return types.RequestID("batch_" + u.String())
}

// SubmitBatchRequest queues a generation and returns its request id
// immediately. The queue is bounded; a full queue rejects the submission
// rather than blocking the caller.
func (m *Manager) SubmitBatchRequest(model, prompt string, params types.GenerationParams) (types.RequestID, error) {
	if m.isClosed() {
		return "", ErrModelNotFound(model)
	}
	req := &batchRequest{
		id:        newBatchID(),
		model:     model,
		prompt:    prompt,
		params:    normalizeParams(params),
		submitted: time.Now(),
	}
	m.batch.addPending(req)
	select {
	case m.batch.queue <- req:
	default:
		m.batch.dropPending(req.id)
		return "", ErrCapacityExhausted("batch queue")
	}
	m.publisher.Publish(Event{Name: "batch_submit", Model: model, Fields: map[string]any{"request": string(req.id)}})
	zlog.Debug().Str("request", string(req.id)).Str("model", model).Msg("batch request queued")
	return req.id, nil
}

// GetBatchResult reports the state of a submitted request: the finished
// result, a pending placeholder, or request-not-found for ids this process
// never issued (or that were torn down).
func (m *Manager) GetBatchResult(id types.RequestID) (types.BatchResult, error) {
	m.batch.mu.Lock()
	defer m.batch.mu.Unlock()
	if res, ok := m.batch.results[id]; ok {
		return res, nil
	}
	if req, ok := m.batch.pending[id]; ok {
		return types.BatchResult{
			ID:          id,
			Status:      types.BatchPending,
			Model:       req.model,
			SubmittedAt: req.submitted,
		}, nil
	}
	return types.BatchResult{}, ErrRequestNotFound(string(id))
}

// GetAllBatchResults returns every finished result, oldest submission
// first.
func (m *Manager) GetAllBatchResults() []types.BatchResult {
	m.batch.mu.Lock()
	out := make([]types.BatchResult, 0, len(m.batch.results))
	for _, res := range m.batch.results {
		out = append(out, res)
	}
	m.batch.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (m *Manager) startBatchWorkers() {
	m.batch.queue = make(chan *batchRequest, m.cfg.BatchQueueDepth)
	m.batch.stop = make(chan struct{})
	for i := 0; i < m.cfg.BatchWorkers; i++ {
		m.batch.wg.Add(1)
		go func() {
			defer m.batch.wg.Done()
			m.batchWorker()
		}()
	}
}

// stopBatchWorkers aborts the consumers and waits for in-flight requests to
// finish. Queued-but-unstarted requests stay pending; the process is going
// down.
func (m *Manager) stopBatchWorkers() {
	close(m.batch.stop)
	m.batch.wg.Wait()
}

// batchWorker consumes requests in submission order. With one worker (the
// default) requests run strictly serially; more workers trade ordering for
// throughput.
func (m *Manager) batchWorker() {
	for {
		select {
		case <-m.batch.stop:
			return
		case req := <-m.batch.queue:
			m.processBatchRequest(req)
		}
	}
}

func (m *Manager) processBatchRequest(req *batchRequest) {
	start := time.Now()
	text, err := m.Generate(context.Background(), req.model, req.prompt, req.params)

	res := types.BatchResult{
		ID:          req.id,
		Model:       req.model,
		SubmittedAt: req.submitted,
		CompletedAt: time.Now(),
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = types.BatchFailed
		res.Error = err.Error()
	} else {
		res.Status = types.BatchSucceeded
		res.Response = text
	}
	m.batch.complete(req.id, res)

	m.publisher.Publish(Event{Name: "batch_done", Model: req.model, Fields: map[string]any{
		"request": string(req.id),
		"status":  string(res.Status),
	}})
	if err != nil {
		zlog.Warn().Str("request", string(req.id)).Err(err).Msg("batch request failed")
	} else {
		zlog.Debug().Str("request", string(req.id)).Int64("duration_ms", res.DurationMS).Msg("batch request done")
	}
}
