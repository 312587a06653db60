package manager

import (
	"strings"
	"testing"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

func TestStreamHappyPath(t *testing.T) {
	eng := engine.NewFake()
	eng.ReplyTokens = 4
	m := newTestManager(t, eng, Config{})
	loadModel(t, m, "tiny")

	id, err := m.StartStreamingSession("tiny", "hello", types.GenerationParams{MaxTokens: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(string(id), "stream_") {
		t.Fatalf("session id = %q, want stream_ prefix", id)
	}

	var pieces []string
	var finals int
	for {
		tok, err := m.GetNextStreamToken(testCtx(t), id)
		if err != nil {
			t.Fatalf("next token: %v", err)
		}
		if tok.Final {
			finals++
			if tok.Text != "" {
				t.Fatalf("final token text = %q, want empty", tok.Text)
			}
			if tok.TokenID != -1 {
				t.Fatalf("final token id = %d, want -1", tok.TokenID)
			}
			break
		}
		if tok.Probability <= 0 || tok.Probability > 1 {
			t.Fatalf("token probability = %v, want (0, 1]", tok.Probability)
		}
		pieces = append(pieces, tok.Text)
	}
	if len(pieces) != 4 {
		t.Fatalf("streamed tokens = %d, want 4", len(pieces))
	}
	if finals != 1 {
		t.Fatalf("final tokens = %d, want exactly 1", finals)
	}

	// Polling a finished session keeps yielding the final token.
	tok, err := m.GetNextStreamToken(testCtx(t), id)
	if err != nil || !tok.Final {
		t.Fatalf("post-finish poll = (%+v, %v), want final token", tok, err)
	}

	if err := m.StopStreamingSession(testCtx(t), id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := m.GetNextStreamToken(testCtx(t), id); !IsSessionNotFound(err) {
		t.Fatalf("err = %v, want session-not-found after stop", err)
	}
	assertPoolQuiescent(t, m, "tiny")
}

func TestStreamMatchesSynchronousGeneration(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")

	sync, err := m.Generate(testCtx(t), "tiny", "compare me", types.GenerationParams{MaxTokens: 6})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	id, err := m.StartStreamingSession("tiny", "compare me", types.GenerationParams{MaxTokens: 6})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var sb strings.Builder
	for {
		tok, err := m.GetNextStreamToken(testCtx(t), id)
		if err != nil {
			t.Fatalf("next token: %v", err)
		}
		if tok.Final {
			break
		}
		sb.WriteString(tok.Text)
	}
	if sb.String() != sync {
		t.Fatalf("streamed %q, synchronous %q", sb.String(), sync)
	}
}

func TestStreamUnknownModelFinishesWithError(t *testing.T) {
	m := newTestManager(t, nil, Config{})

	id, err := m.StartStreamingSession("ghost", "hello", types.GenerationParams{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	tok, err := m.GetNextStreamToken(testCtx(t), id)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if !tok.Final {
		t.Fatalf("token = %+v, want final", tok)
	}
	// The failure surfaces once the final token has been consumed.
	if _, err := m.GetNextStreamToken(testCtx(t), id); !IsModelNotFound(err) {
		t.Fatalf("err = %v, want model-not-found", err)
	}
}

func TestStreamStopMidGeneration(t *testing.T) {
	eng := engine.NewFake()
	eng.ReplyTokens = 1000
	eng.StepDelay = 5 * time.Millisecond
	m := newTestManager(t, eng, Config{})
	loadModel(t, m, "tiny")

	id, err := m.StartStreamingSession("tiny", "hello", types.GenerationParams{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		tok, err := m.GetNextStreamToken(testCtx(t), id)
		if err != nil {
			t.Fatalf("next token: %v", err)
		}
		if tok.Final {
			t.Fatal("stream finished before stop")
		}
	}

	if err := m.StopStreamingSession(testCtx(t), id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := m.GetNextStreamToken(testCtx(t), id); !IsSessionNotFound(err) {
		t.Fatalf("err = %v, want session-not-found", err)
	}
	// Stop waits for the task, so the context must already be back.
	assertPoolQuiescent(t, m, "tiny")
}

func TestStreamStopUnknownSession(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	if err := m.StopStreamingSession(testCtx(t), "stream_nope"); !IsSessionNotFound(err) {
		t.Fatalf("err = %v, want session-not-found", err)
	}
}

func TestStreamIDsUnique(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")
	seen := make(map[types.SessionID]bool)
	for i := 0; i < 32; i++ {
		id, err := m.StartStreamingSession("tiny", "hi", types.GenerationParams{MaxTokens: 1})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

func TestStreamBoundedWorkersStillComplete(t *testing.T) {
	eng := engine.NewFake()
	eng.ReplyTokens = 3
	m := newTestManager(t, eng, Config{StreamWorkers: 1})
	loadModel(t, m, "tiny")

	a, err := m.StartStreamingSession("tiny", "first", types.GenerationParams{MaxTokens: 5})
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := m.StartStreamingSession("tiny", "second", types.GenerationParams{MaxTokens: 5})
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	for _, id := range []types.SessionID{a, b} {
		for {
			tok, err := m.GetNextStreamToken(testCtx(t), id)
			if err != nil {
				t.Fatalf("next token %s: %v", id, err)
			}
			if tok.Final {
				break
			}
		}
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	eng := engine.NewFake()
	eng.ReplyTokens = 1
	m := newTestManager(t, eng, Config{})
	loadModel(t, m, "tiny")

	a, _ := m.StartStreamingSession("tiny", "one", types.GenerationParams{MaxTokens: 2})
	b, _ := m.StartStreamingSession("tiny", "two", types.GenerationParams{MaxTokens: 2})

	time.Sleep(5 * time.Millisecond)
	if removed := m.CleanupExpiredSessions(time.Millisecond); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, id := range []types.SessionID{a, b} {
		if _, err := m.GetNextStreamToken(testCtx(t), id); !IsSessionNotFound(err) {
			t.Fatalf("err = %v, want session-not-found for %s", err, id)
		}
	}
	if m.sessions.count() != 0 {
		t.Fatal("session table not empty after sweep")
	}
}

func TestCleanupExpiredSessionsSparesRecent(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")
	id, _ := m.StartStreamingSession("tiny", "fresh", types.GenerationParams{MaxTokens: 2})

	if removed := m.CleanupExpiredSessions(time.Hour); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if _, err := m.GetNextStreamToken(testCtx(t), id); err != nil {
		t.Fatalf("fresh session gone: %v", err)
	}
}
