package types

import "time"

// ModelConfig describes how a model file should be loaded. It is created by
// the caller and never mutated after load.
type ModelConfig struct {
	// Absolute or ~-relative path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" yaml:"path" toml:"path"`
	// Context window size in tokens.
	// example: 2048
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	// Decode batch size in tokens.
	// example: 512
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	// CPU threads used for decoding.
	// example: 4
	Threads int `json:"threads" yaml:"threads" toml:"threads"`
	// Number of layers offloaded to the GPU (0 = CPU only).
	// example: 0
	GPULayers int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	// Seed for the model's own RNG; -1 picks a random seed.
	// example: -1
	Seed int `json:"seed" yaml:"seed" toml:"seed"`
	// Map the model file instead of reading it into memory.
	UseMmap bool `json:"use_mmap" yaml:"use_mmap" toml:"use_mmap"`
	// Lock model pages in RAM.
	UseMlock bool `json:"use_mlock" yaml:"use_mlock" toml:"use_mlock"`
	// Open contexts in embedding mode.
	Embeddings bool `json:"embeddings" yaml:"embeddings" toml:"embeddings"`
	// Keep the KV cache in fp16.
	F16Memory bool `json:"f16_memory" yaml:"f16_memory" toml:"f16_memory"`
}

// DefaultModelConfig returns a ModelConfig with the standard defaults applied.
// Path is left empty; callers must set it.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		ContextSize: 2048,
		BatchSize:   512,
		Threads:     4,
		GPULayers:   0,
		Seed:        -1,
		UseMmap:     true,
		UseMlock:    false,
		Embeddings:  false,
		F16Memory:   true,
	}
}

// WithDefaults returns c with unset numeric fields replaced by the standard
// defaults. Boolean fields are taken as given.
func (c ModelConfig) WithDefaults() ModelConfig {
	def := DefaultModelConfig()
	if c.ContextSize <= 0 {
		c.ContextSize = def.ContextSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Threads <= 0 {
		c.Threads = def.Threads
	}
	if c.Seed == 0 {
		c.Seed = def.Seed
	}
	return c
}

// GenerationParams carries per-request sampling and length settings.
type GenerationParams struct {
	// Maximum number of new tokens to generate.
	// example: 100
	MaxTokens int `json:"max_tokens"`
	// Sampling temperature (higher = more random).
	// example: 0.8
	Temperature float32 `json:"temperature"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float32 `json:"top_p"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k"`
	// Penalty applied to recently generated tokens.
	// example: 1.0
	RepeatPenalty float32 `json:"repeat_penalty"`
	// How many recent tokens the repeat penalty considers.
	// example: 64
	RepeatLastN int `json:"repeat_last_n"`
	// Sampling seed; -1 picks a random seed.
	// example: -1
	Seed int `json:"seed"`
	// Generation stops when any of these sequences is produced.
	Stop []string `json:"stop,omitempty"`
}

// DefaultGenerationParams returns the standard generation defaults.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		MaxTokens:     100,
		Temperature:   0.8,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.0,
		RepeatLastN:   64,
		Seed:          -1,
	}
}

// ChatMessage is one turn of a role-tagged transcript.
type ChatMessage struct {
	// Role of the speaker: "system", "user", or "assistant".
	// example: user
	Role string `json:"role" example:"user"`
	// Message text.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// StreamToken is one element of a streaming session's token sequence.
// A session ends with exactly one token carrying Final=true and empty text.
type StreamToken struct {
	// Token text, already detokenized.
	Text string `json:"text"`
	// True only on the synthetic last token of the stream.
	Final bool `json:"is_final"`
	// Sampling probability of the chosen token, in (0, 1].
	Probability float32 `json:"probability"`
	// Engine token id; -1 on the final token.
	TokenID int `json:"token_id"`
}

// SessionID identifies a streaming session.
type SessionID string

// RequestID identifies a batch request.
type RequestID string

// BatchStatus tags the lifecycle state of a batch request.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
)

// BatchResult is the stored outcome of a batch request. While the request is
// queued or running, a result with Status=BatchPending is returned.
type BatchResult struct {
	// ID of the originating request.
	ID RequestID `json:"id"`
	// Lifecycle tag: pending, succeeded, or failed.
	Status BatchStatus `json:"status"`
	// Generated text when Status is succeeded.
	Response string `json:"response,omitempty"`
	// Failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// Model the request targets.
	Model string `json:"model"`
	// When the request was submitted.
	SubmittedAt time.Time `json:"submitted_at"`
	// When processing finished; zero while pending.
	CompletedAt time.Time `json:"completed_at,omitempty"`
	// Wall-clock processing time in milliseconds; zero while pending.
	DurationMS int64 `json:"duration_ms"`
}

// ModelFile describes a model artifact discovered on disk.
type ModelFile struct {
	// Filename used as the model's default name.
	// example: tinyllama-q4.gguf
	Name string `json:"name" example:"tinyllama-q4.gguf"`
	// Absolute path to the file.
	Path string `json:"path"`
	// File size in MB.
	// example: 668
	SizeMB int64 `json:"size_mb" example:"668"`
}
