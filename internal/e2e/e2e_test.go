package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

// TestE2E_ReadyStatusModels walks the diagnostics surface through a model's
// lifecycle: not ready, loaded and visible everywhere, then gone again.
func TestE2E_ReadyStatusModels(t *testing.T) {
	dir := createTempModelsDir(t, "alpha.gguf", "beta.gguf")
	srv, mgr := newServer(t, dir, manager.Config{})

	// 1) Nothing loaded: /readyz reports 503.
	resp, body := httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz expected 503, got %d body=%s", resp.StatusCode, body)
	}

	// 2) /models lists the discovered files even before any load.
	resp, body = httpGet(t, srv.URL+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models status=%d body=%s", resp.StatusCode, body)
	}
	var models types.ModelsResponse
	if err := json.Unmarshal(body, &models); err != nil {
		t.Fatalf("/models json: %v body=%s", err, body)
	}
	if len(models.Loaded) != 0 || len(models.Available) != 2 {
		t.Fatalf("unexpected /models: %+v", models)
	}

	// 3) Load a model; readiness and listings flip.
	loadModel(t, mgr, dir, "alpha.gguf", "alpha")
	resp, _ = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz expected 200 after load, got %d", resp.StatusCode)
	}
	resp, body = httpGet(t, srv.URL+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models status=%d", resp.StatusCode)
	}
	models = types.ModelsResponse{}
	if err := json.Unmarshal(body, &models); err != nil {
		t.Fatalf("/models json: %v", err)
	}
	if len(models.Loaded) != 1 || models.Loaded[0] != "alpha" {
		t.Fatalf("loaded=%v", models.Loaded)
	}

	// 4) /status reports the model and its memory estimate.
	resp, body = httpGet(t, srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status status=%d", resp.StatusCode)
	}
	var status types.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("/status json: %v body=%s", err, body)
	}
	if len(status.Models) != 1 || status.Models[0].Name != "alpha" {
		t.Fatalf("unexpected status models: %+v", status.Models)
	}
	if status.MemoryUsedBytes == 0 {
		t.Fatalf("memory_used_bytes should be nonzero after a load")
	}

	// 5) Per-model status: 200 for alpha, 404 for a stranger.
	resp, _ = httpGet(t, srv.URL+"/status/alpha")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status/alpha status=%d", resp.StatusCode)
	}
	resp, body = httpGet(t, srv.URL+"/status/ghost")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/status/ghost expected 404, got %d", resp.StatusCode)
	}
	var apiErr types.ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("error json: %v body=%s", err, body)
	}
	if apiErr.Code != http.StatusNotFound || !strings.Contains(apiErr.Error, "ghost") {
		t.Fatalf("unexpected error payload: %+v", apiErr)
	}

	// 6) Unload; readiness drops back to 503.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.UnloadModel(ctx, "alpha"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	resp, _ = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz expected 503 after unload, got %d", resp.StatusCode)
	}
}

// TestE2E_GenerationVisibleInDiagnostics runs one request down each path
// (direct, streaming, batch) and checks the counters that surface over HTTP.
func TestE2E_GenerationVisibleInDiagnostics(t *testing.T) {
	dir := createTempModelsDir(t, "alpha.gguf")
	srv, mgr := newServer(t, dir, manager.Config{})
	loadModel(t, mgr, dir, "alpha.gguf", "alpha")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Direct generation.
	out, err := mgr.Generate(ctx, "alpha", "a quiet ocean", types.GenerationParams{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out == "" {
		t.Fatalf("empty generation")
	}

	// Streaming session, drained to the final token.
	sid, err := mgr.StartStreamingSession("alpha", "a quiet ocean", types.GenerationParams{})
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}
	if text := drainStream(t, mgr, sid); text != out {
		t.Fatalf("stream text %q != sync text %q", text, out)
	}
	if err := mgr.StopStreamingSession(ctx, sid); err != nil {
		t.Fatalf("stop stream: %v", err)
	}

	// Batch request, waited to completion.
	rid, err := mgr.SubmitBatchRequest("alpha", "a quiet ocean", types.GenerationParams{})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if res := waitBatch(t, mgr, rid); res.Status != types.BatchSucceeded || res.Response != out {
		t.Fatalf("unexpected batch result: %+v", res)
	}

	// /status shows a drained runtime: no sessions, no pending batch.
	resp, body := httpGet(t, srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status status=%d", resp.StatusCode)
	}
	var status types.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("/status json: %v", err)
	}
	if status.ActiveSessions != 0 || status.PendingBatch != 0 {
		t.Fatalf("runtime not drained: %+v", status)
	}

	// /metrics counts the direct and batch requests; streaming is excluded.
	resp, body = httpGet(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status=%d", resp.StatusCode)
	}
	text := string(body)
	if !strings.Contains(text, "inferd_runtime_requests_total 2") {
		t.Fatalf("expected 2 counted requests in metrics:\n%s", grepMetrics(text, "inferd_runtime"))
	}
	if strings.Contains(text, "inferd_runtime_tokens_generated_total 0") {
		t.Fatalf("tokens counter still zero:\n%s", grepMetrics(text, "inferd_runtime"))
	}
	if !strings.Contains(text, "inferd_http_requests_total") {
		t.Fatalf("HTTP request counters missing from /metrics")
	}
}

// grepMetrics filters an exposition body to lines containing needle.
func grepMetrics(body, needle string) string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(line, needle) {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
