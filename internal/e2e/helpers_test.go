package e2e

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with small
// .gguf files and returns the directory path.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

// newServer wires a fake-engine manager to the diagnostics mux the same way
// the serve command does and returns both.
func newServer(t *testing.T, modelsDir string, cfg manager.Config) (*httptest.Server, *manager.Manager) {
	t.Helper()
	mgr := manager.New(engine.NewFake(), cfg)
	t.Cleanup(mgr.Cleanup)

	if modelsDir != "" {
		httpapi.SetModelFileLister(func() []types.ModelFile {
			files, err := registry.LoadDir(modelsDir)
			if err != nil {
				return nil
			}
			return files
		})
		t.Cleanup(func() { httpapi.SetModelFileLister(nil) })
	}

	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// loadModel loads name from dir with default settings.
func loadModel(t *testing.T, mgr *manager.Manager, dir, file, name string) {
	t.Helper()
	mc := types.DefaultModelConfig()
	mc.Path = filepath.Join(dir, file)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.LoadModel(ctx, name, mc); err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
}

// drainStream polls a session until its final token and returns the
// concatenated text.
func drainStream(t *testing.T, mgr *manager.Manager, id types.SessionID) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var text string
	for {
		tok, err := mgr.GetNextStreamToken(ctx, id)
		if err != nil {
			t.Fatalf("next token: %v", err)
		}
		if tok.Final {
			return text
		}
		text += tok.Text
	}
}

// waitBatch polls until the batch request leaves the pending state.
func waitBatch(t *testing.T, mgr *manager.Manager, id types.RequestID) types.BatchResult {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		res, err := mgr.GetBatchResult(id)
		if err != nil {
			t.Fatalf("batch result: %v", err)
		}
		if res.Status != types.BatchPending {
			return res
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("batch %s still pending", id)
	return types.BatchResult{}
}
