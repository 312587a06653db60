package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: tinyllama
	Error string `json:"error" example:"model not found: tinyllama"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ModelsResponse wraps the model listing returned by GET /models.
type ModelsResponse struct {
	// Names of currently loaded models.
	Loaded []string `json:"loaded"`
	// Model files discovered in the configured models directory.
	Available []ModelFile `json:"available,omitempty"`
}

// ModelStatus summarizes one loaded model for GET /status.
type ModelStatus struct {
	// Name the model was loaded under.
	// example: tinyllama-q4
	Name string `json:"name" example:"tinyllama-q4"`
	// Outstanding handles to the model.
	// example: 1
	RefCount int64 `json:"ref_count" example:"1"`
	// Total execution contexts the pool has created.
	// example: 3
	PoolSize int `json:"pool_size" example:"3"`
	// Idle execution contexts ready for reuse.
	// example: 2
	PoolAvailable int `json:"pool_available" example:"2"`
	// Estimated memory footprint in MB.
	// example: 1200
	MemoryMB int64 `json:"memory_mb" example:"1200"`
	// Last time the model served a request (unix seconds).
	// example: 1700000000
	LastAccessUnix int64 `json:"last_access_unix" example:"1700000000"`
	// Context window the model was loaded with.
	// example: 2048
	ContextSize int `json:"context_size" example:"2048"`
	// True while an unload is draining the model.
	Draining bool `json:"draining,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded models.
	Models []ModelStatus `json:"models"`
	// Estimated memory in use across all models, in bytes.
	// example: 1258291200
	MemoryUsedBytes uint64 `json:"memory_used_bytes" example:"1258291200"`
	// Peak estimated memory observed since start, in bytes.
	// example: 2516582400
	MemoryPeakBytes uint64 `json:"memory_peak_bytes" example:"2516582400"`
	// Configured memory limit in bytes (0 = unlimited).
	// example: 8589934592
	MemoryLimitBytes uint64 `json:"memory_limit_bytes" example:"8589934592"`
	// Streaming sessions currently tracked.
	// example: 2
	ActiveSessions int `json:"active_sessions" example:"2"`
	// Batch requests submitted but not yet finished.
	// example: 5
	PendingBatch int `json:"pending_batch" example:"5"`
	// Uptime of the runtime in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// MetricsSnapshot is a point-in-time copy of the runtime counters.
type MetricsSnapshot struct {
	// Completed generation requests (direct, chat, and batch).
	// example: 42
	TotalRequests uint64 `json:"total_requests" example:"42"`
	// Tokens produced across all completed requests.
	// example: 8400
	TotalTokensGenerated uint64 `json:"total_tokens_generated" example:"8400"`
	// Aggregate wall-clock generation time in milliseconds.
	// example: 120000
	TotalGenerationTimeMS uint64 `json:"total_generation_time_ms" example:"120000"`
	// Estimated memory in use, in bytes.
	MemoryUsageBytes uint64 `json:"memory_usage_bytes"`
	// Peak estimated memory observed, in bytes.
	PeakMemoryBytes uint64 `json:"peak_memory_bytes"`
	// Execution contexts currently checked out of pools.
	// example: 1
	ActiveContexts int `json:"active_contexts" example:"1"`
	// Execution contexts held across all pools, idle or not.
	// example: 4
	PoolSize int `json:"pool_size" example:"4"`
}

// AverageTokensPerSecond derives throughput from the aggregate counters.
func (s MetricsSnapshot) AverageTokensPerSecond() float64 {
	if s.TotalGenerationTimeMS == 0 {
		return 0
	}
	return float64(s.TotalTokensGenerated) / float64(s.TotalGenerationTimeMS) * 1000.0
}

// AverageLatencyMS derives mean request latency from the aggregate counters.
func (s MetricsSnapshot) AverageLatencyMS() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalGenerationTimeMS) / float64(s.TotalRequests)
}

// MemoryUsageMB reports current estimated memory in whole MB.
func (s MetricsSnapshot) MemoryUsageMB() uint64 {
	return s.MemoryUsageBytes / (1024 * 1024)
}
