package manager

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// session is one live streaming generation. The token channel is sized
// MaxTokens+1 so the producing task can always enqueue every real token
// plus the synthetic final one without blocking; GetNextStreamToken is the
// only blocking side.
type session struct {
	id      types.SessionID
	model   string
	prompt  string
	params  types.GenerationParams
	started time.Time

	tokens chan types.StreamToken
	cancel context.CancelFunc
	// done closes when the generation task has fully exited.
	done chan struct{}

	mu       sync.Mutex
	finished bool
	err      error
}

func (s *session) setResult(err error) {
	s.mu.Lock()
	s.finished = true
	s.err = err
	s.mu.Unlock()
}

func (s *session) result() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, s.err
}

// sessionTable keys live sessions by id, under its own lock so token polls
// never contend with the registry.
type sessionTable struct {
	mu   sync.Mutex
	byID map[types.SessionID]*session
}

func (t *sessionTable) put(s *session) {
	t.mu.Lock()
	if t.byID == nil {
		t.byID = make(map[types.SessionID]*session)
	}
	t.byID[s.id] = s
	t.mu.Unlock()
}

func (t *sessionTable) get(id types.SessionID) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

func (t *sessionTable) remove(id types.SessionID) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.byID[id]
	delete(t.byID, id)
	return s
}

func (t *sessionTable) all() []*session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	return out
}

func (t *sessionTable) drainAll() []*session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	t.byID = nil
	return out
}

func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

func newStreamID() types.SessionID {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return types.SessionID("stream_" + u.String())
}

// StartStreamingSession registers a session and spawns its generation task,
// returning the session id immediately. Acquisition failures inside the
// task mark the session finished with the error; the consumer still gets a
// final token, so it never blocks forever.
func (m *Manager) StartStreamingSession(model, prompt string, params types.GenerationParams) (types.SessionID, error) {
	if m.isClosed() {
		return "", ErrModelNotFound(model)
	}
	params = normalizeParams(params)

	taskCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      newStreamID(),
		model:   model,
		prompt:  prompt,
		params:  params,
		started: time.Now(),
		tokens:  make(chan types.StreamToken, params.MaxTokens+1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.sessions.put(s)

	m.publisher.Publish(Event{Name: "stream_start", Model: model, Fields: map[string]any{"session": string(s.id)}})
	zlog.Debug().Str("session", string(s.id)).Str("model", model).Msg("stream started")

	go m.streamTask(taskCtx, s)
	return s.id, nil
}

// streamTask drives one session: wait for a worker slot, lease the model,
// check out a context, and run the shared token loop, pushing each token
// into the session channel. Every exit path enqueues the synthetic final
// token after the context and lease are back.
func (m *Manager) streamTask(ctx context.Context, s *session) {
	defer close(s.done)

	var genErr error
	var generated int
	defer func() {
		if genErr != nil && (errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded)) {
			genErr = nil
		}
		s.setResult(genErr)
		s.tokens <- types.StreamToken{Final: true, TokenID: -1}
		close(s.tokens)
		if genErr != nil {
			m.publisher.Publish(Event{Name: "stream_error", Model: s.model, Fields: map[string]any{"session": string(s.id), "error": genErr.Error()}})
			zlog.Warn().Str("session", string(s.id)).Err(genErr).Msg("stream failed")
		} else {
			m.publisher.Publish(Event{Name: "stream_finish", Model: s.model, Fields: map[string]any{"session": string(s.id), "tokens": generated}})
		}
	}()

	if genErr = m.streamSem.Acquire(ctx, 1); genErr != nil {
		return
	}
	defer m.streamSem.Release(1)

	lease, err := m.acquireModel(s.model)
	if err != nil {
		genErr = err
		return
	}
	defer lease.Release()

	entry, err := lease.lm.pool.acquire()
	if err != nil {
		genErr = err
		return
	}
	defer lease.lm.pool.release(entry)

	_, generated, genErr = runGeneration(ctx, lease.lm, entry, s.prompt, s.params, func(tok engine.Token) bool {
		s.tokens <- types.StreamToken{
			Text:        tok.Piece,
			Probability: tokenProbability(tok.Logit),
			TokenID:     tok.ID,
		}
		return ctx.Err() == nil
	})
}

// tokenProbability squashes a raw logit into (0, 1].
func tokenProbability(logit float32) float32 {
	p := math.Exp(float64(logit))
	if p > 1 {
		p = 1
	}
	return float32(p)
}

// GetNextStreamToken blocks until the session yields a token, the session
// is finished, or ctx fires. After the final token has been delivered,
// further calls return the final token again, or the session's error if it
// failed.
func (m *Manager) GetNextStreamToken(ctx context.Context, id types.SessionID) (types.StreamToken, error) {
	s := m.sessions.get(id)
	if s == nil {
		return types.StreamToken{}, ErrSessionNotFound(string(id))
	}
	select {
	case tok, ok := <-s.tokens:
		if !ok {
			if _, err := s.result(); err != nil {
				return types.StreamToken{}, err
			}
			return types.StreamToken{Final: true, TokenID: -1}, nil
		}
		return tok, nil
	case <-ctx.Done():
		return types.StreamToken{}, ctx.Err()
	}
}

// StopStreamingSession cancels a session's generation task, waits for it to
// observe the cancellation and exit, and removes the session. Cancellation
// is observed at token granularity, never mid-token.
func (m *Manager) StopStreamingSession(ctx context.Context, id types.SessionID) error {
	s := m.sessions.get(id)
	if s == nil {
		return ErrSessionNotFound(string(id))
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.sessions.remove(id)
	m.publisher.Publish(Event{Name: "stream_stop", Model: s.model, Fields: map[string]any{"session": string(id)}})
	zlog.Debug().Str("session", string(id)).Msg("stream stopped")
	return nil
}

// CleanupExpiredSessions cancels and removes every session older than
// maxAge, finished or not, and returns how many were removed. It does not
// wait for the cancelled tasks; their channels are buffered, so they can
// finish unobserved.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	var removed int
	for _, s := range m.sessions.all() {
		if s.started.After(cutoff) {
			continue
		}
		s.cancel()
		m.sessions.remove(s.id)
		removed++
	}
	if removed > 0 {
		zlog.Info().Int("sessions", removed).Msg("expired streaming sessions removed")
	}
	return removed
}

// stopAllSessions force-cancels everything for Cleanup and waits a bounded
// time for the tasks to exit.
func (m *Manager) stopAllSessions() {
	sessions := m.sessions.drainAll()
	for _, s := range sessions {
		s.cancel()
	}
	timer := time.NewTimer(m.cfg.DrainTimeout)
	defer timer.Stop()
	for _, s := range sessions {
		select {
		case <-s.done:
		case <-timer.C:
			zlog.Warn().Msg("streaming tasks still running at cleanup")
			return
		}
	}
}
