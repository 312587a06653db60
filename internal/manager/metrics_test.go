package manager

import (
	"testing"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

func TestMemoryPeakSurvivesUnload(t *testing.T) {
	eng := engine.NewFake()
	eng.ParamCount = 1_000_000 // 2 MB per model
	m := newTestManager(t, eng, Config{})

	loadModel(t, m, "a")
	loadModel(t, m, "b")
	if err := m.UnloadModel(testCtx(t), "a"); err != nil {
		t.Fatalf("unload: %v", err)
	}

	snap := m.GetMetrics()
	if snap.MemoryUsageBytes != 2_000_000 {
		t.Fatalf("usage = %d, want 2000000", snap.MemoryUsageBytes)
	}
	if snap.PeakMemoryBytes != 4_000_000 {
		t.Fatalf("peak = %d, want 4000000", snap.PeakMemoryBytes)
	}
}

func TestResetMetricsPreservesUsage(t *testing.T) {
	eng := engine.NewFake()
	eng.ParamCount = 1_000_000
	m := newTestManager(t, eng, Config{})
	loadModel(t, m, "tiny")
	if _, err := m.Generate(testCtx(t), "tiny", "hello", types.GenerationParams{MaxTokens: 2}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	m.ResetMetrics()
	snap := m.GetMetrics()
	if snap.TotalRequests != 0 || snap.TotalTokensGenerated != 0 || snap.TotalGenerationTimeMS != 0 {
		t.Fatalf("counters not reset: %+v", snap)
	}
	if snap.MemoryUsageBytes != 2_000_000 {
		t.Fatalf("usage = %d disturbed by reset, want 2000000", snap.MemoryUsageBytes)
	}
	if snap.PeakMemoryBytes != snap.MemoryUsageBytes {
		t.Fatalf("peak = %d, want collapsed to usage %d", snap.PeakMemoryBytes, snap.MemoryUsageBytes)
	}
}

func TestSetMemoryLimitAndHealth(t *testing.T) {
	eng := engine.NewFake()
	eng.ParamCount = 1_000_000
	m := newTestManager(t, eng, Config{})
	loadModel(t, m, "tiny")

	if !m.CheckMemoryHealth() {
		t.Fatal("unhealthy with no limit configured")
	}
	m.SetMemoryLimit(1_000_000)
	if m.CheckMemoryHealth() {
		t.Fatal("healthy while over the new limit")
	}
	m.SetMemoryLimit(0)
	if !m.CheckMemoryHealth() {
		t.Fatal("unhealthy after removing the limit")
	}
}

func TestMetricsSnapshotPoolCounters(t *testing.T) {
	m := newTestManager(t, nil, Config{})
	loadModel(t, m, "tiny")
	if _, err := m.Generate(testCtx(t), "tiny", "hello", types.GenerationParams{MaxTokens: 1}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	snap := m.GetMetrics()
	if snap.PoolSize != 1 {
		t.Fatalf("pool size = %d, want 1", snap.PoolSize)
	}
	if snap.ActiveContexts != 0 {
		t.Fatalf("active contexts = %d, want 0 at rest", snap.ActiveContexts)
	}
}

func TestSnapshotDerivedRates(t *testing.T) {
	snap := types.MetricsSnapshot{
		TotalRequests:         4,
		TotalTokensGenerated:  200,
		TotalGenerationTimeMS: 2000,
	}
	if got := snap.AverageTokensPerSecond(); got != 100 {
		t.Fatalf("tokens/s = %v, want 100", got)
	}
	if got := snap.AverageLatencyMS(); got != 500 {
		t.Fatalf("latency = %v, want 500", got)
	}

	var empty types.MetricsSnapshot
	if empty.AverageTokensPerSecond() != 0 || empty.AverageLatencyMS() != 0 {
		t.Fatal("zero snapshot must not divide by zero")
	}
}
