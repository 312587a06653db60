package manager

import (
	"strings"
	"testing"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// waitBatchDone polls until the request leaves the pending state.
func waitBatchDone(t *testing.T, m *Manager, id types.RequestID) types.BatchResult {
	t.Helper()
	var res types.BatchResult
	waitFor(t, 5*time.Second, func() bool {
		var err error
		res, err = m.GetBatchResult(id)
		if err != nil {
			t.Fatalf("result %s: %v", id, err)
		}
		return res.Status != types.BatchPending
	}, "batch request finished")
	return res
}

func TestBatchSubmitAndResult(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")

	id, err := m.SubmitBatchRequest("tiny", "hello", types.GenerationParams{MaxTokens: 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(string(id), "batch_") {
		t.Fatalf("request id = %q, want batch_ prefix", id)
	}

	res := waitBatchDone(t, m, id)
	if res.Status != types.BatchSucceeded {
		t.Fatalf("status = %s (%s), want succeeded", res.Status, res.Error)
	}
	if res.Response == "" {
		t.Fatal("empty batch response")
	}
	if res.CompletedAt.IsZero() {
		t.Fatal("completed timestamp not set")
	}
	if res.DurationMS < 0 {
		t.Fatalf("duration = %d ms", res.DurationMS)
	}
	// Batch generations flow through the same counters as direct ones.
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Fatalf("total requests = %d, want 1", got)
	}
	// Results are retained and re-readable.
	again, err := m.GetBatchResult(id)
	if err != nil || again.Status != types.BatchSucceeded {
		t.Fatalf("re-read = (%+v, %v), want retained result", again, err)
	}
}

func TestBatchUnknownModelFails(t *testing.T) {
	m := newTestManager(t, nil, Config{})

	id, err := m.SubmitBatchRequest("ghost", "hello", types.GenerationParams{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitBatchDone(t, m, id)
	if res.Status != types.BatchFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Error == "" {
		t.Fatal("failed result carries no error message")
	}
	if res.Response != "" {
		t.Fatalf("failed result carries response %q", res.Response)
	}
}

func TestBatchResultUnknownID(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	if _, err := m.GetBatchResult("batch_nope"); !IsRequestNotFound(err) {
		t.Fatalf("err = %v, want request-not-found", err)
	}
}

func TestBatchNeverPartial(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")

	id, err := m.SubmitBatchRequest("tiny", "hello", types.GenerationParams{MaxTokens: 2})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Immediately after submission the result is pending or final, with no
	// in-between shape.
	for i := 0; i < 50; i++ {
		res, err := m.GetBatchResult(id)
		if err != nil {
			t.Fatalf("result: %v", err)
		}
		switch res.Status {
		case types.BatchPending:
			if res.Response != "" || res.Error != "" || !res.CompletedAt.IsZero() {
				t.Fatalf("pending result carries final fields: %+v", res)
			}
		case types.BatchSucceeded:
			if res.Response == "" || res.CompletedAt.IsZero() {
				t.Fatalf("succeeded result incomplete: %+v", res)
			}
			return
		default:
			t.Fatalf("unexpected status %s: %+v", res.Status, res)
		}
	}
	waitBatchDone(t, m, id)
}

func TestBatchQueueFullRejects(t *testing.T) {
	eng := engine.NewFake()
	eng.StepDelay = 20 * time.Millisecond
	eng.ReplyTokens = 50
	m := newTestManager(t, eng, Config{BatchQueueDepth: 1, BatchWorkers: 1})
	loadModel(t, m, "tiny")

	var rejected int
	for i := 0; i < 3; i++ {
		_, err := m.SubmitBatchRequest("tiny", "hello", types.GenerationParams{MaxTokens: 50})
		if err != nil {
			if !IsCapacityExhausted(err) {
				t.Fatalf("err = %v, want capacity-exhausted", err)
			}
			rejected++
		}
	}
	if rejected == 0 {
		t.Fatal("no submission rejected with queue depth 1")
	}
}

func TestBatchResultsOrderedBySubmission(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")

	first, err := m.SubmitBatchRequest("tiny", "one", types.GenerationParams{MaxTokens: 1})
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := m.SubmitBatchRequest("tiny", "two", types.GenerationParams{MaxTokens: 1})
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	waitBatchDone(t, m, first)
	waitBatchDone(t, m, second)

	all := m.GetAllBatchResults()
	if len(all) != 2 {
		t.Fatalf("results = %d, want 2", len(all))
	}
	if all[0].ID != first || all[1].ID != second {
		t.Fatalf("order = [%s %s], want [%s %s]", all[0].ID, all[1].ID, first, second)
	}
}

func TestBatchSubmitAfterCleanup(t *testing.T) {
	m := New(engine.NewFake(), Config{})
	m.Cleanup()
	if _, err := m.SubmitBatchRequest("tiny", "hello", types.GenerationParams{}); err == nil {
		t.Fatal("submit accepted after cleanup")
	}
}
