// Package manager implements the model lifecycle runtime: a registry of
// loaded models, per-model execution-context pools, streaming sessions, a
// batch queue, memory accounting, and a background janitor. It is structured
// into small files by concern:
//
//   - manager.go: core Manager type, constructor, Cleanup, simple getters.
//   - config.go: Config and package defaults.
//   - types.go: internal state types (loadedModel, modelLease, poolEntry).
//   - errors.go: error types and helpers (IsModelNotFound, IsCapacityExhausted, ...).
//   - registry.go: LoadModel/UnloadModel lifecycle and memory admission.
//   - pool.go: bounded per-model context pool with idle eviction.
//   - generate.go: Generate/ChatCompletion/GetEmbeddings and the shared token loop.
//   - stream.go: streaming sessions and their generation tasks.
//   - batch.go: batch queue, workers, and result bookkeeping.
//   - janitor.go: periodic idle-context sweeps.
//   - memory.go: atomic memory accounting with peak tracking.
//   - metrics.go: runtime counters and snapshots.
//   - status.go: status reporting for the diagnostic surface.
//   - events.go: lifecycle event publishing (eventpub_memory.go: in-memory publisher).
//   - logging.go: package logger installation.
//   - sanity.go: backend and artifact preflight checks.
//
// The inference backend is abstracted behind internal/engine. The in-process
// llama.cpp binding is enabled with `-tags=llama`; without the tag a
// fail-fast stub compiles in, and the deterministic fake engine runs the
// full stack for tests and local development.
//
// External packages should treat this package as the orchestration layer and
// use exported methods only. Internal types are subject to change.
package manager
