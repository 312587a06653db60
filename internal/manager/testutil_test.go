package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// createModelFile writes a small placeholder artifact and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
		t.Fatalf("create model file: %v", err)
	}
	return p
}

// newTestManager builds a Manager over the given fake engine (or a fresh
// one) and tears it down on test cleanup.
func newTestManager(t *testing.T, eng *engine.Fake, cfg Config) *Manager {
	t.Helper()
	if eng == nil {
		eng = engine.NewFake()
	}
	m := New(eng, cfg)
	t.Cleanup(m.Cleanup)
	return m
}

// loadModel loads name from a fresh temp artifact, failing the test on error.
func loadModel(t *testing.T, m *Manager, name string) types.ModelConfig {
	t.Helper()
	cfg := types.DefaultModelConfig()
	cfg.Path = createModelFile(t, t.TempDir(), name+".gguf")
	if err := m.LoadModel(testCtx(t), name, cfg); err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return cfg
}

// testCtx returns a context with a generous timeout, canceled on cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", msg)
}
