// Package engine abstracts the inference backend used by the manager.
//
// Two real implementations exist: an in-process llama.cpp binding compiled
// with `-tags=llama` (llama.go) and a fail-fast stub compiled without it
// (llama_stub.go). A deterministic Fake lives in the main tree for tests and
// for running the full stack without model files.
package engine

// Token is one sampled unit of generation. Piece is the detokenized text and
// EOG marks the end of the sequence; a Token with EOG set carries no text.
type Token struct {
	ID    int
	Piece string
	Logit float32
	EOG   bool
}

// ModelParams control how a model file is loaded and how its contexts
// behave. One ModelParams value applies to the model and every context
// derived from it.
type ModelParams struct {
	ContextSize int
	BatchSize   int
	Threads     int
	GPULayers   int
	Seed        int
	UseMmap     bool
	UseMlock    bool
	Embeddings  bool
	F16Memory   bool
}

// ContextParams control a single execution context.
type ContextParams struct {
	ContextSize int
	BatchSize   int
	Threads     int
	Embeddings  bool
}

// SamplerParams configure a sampling chain attached to one context.
type SamplerParams struct {
	TopK        int
	TopP        float32
	MinKeep     int
	Temperature float32
	Seed        uint32
	// Generation stops early when one of these strings is produced.
	// Backends that sample token-by-token may ignore it.
	Stop []string
}

// Engine is the backend entry point. Init is called once before any load;
// implementations must make it safe to call again after a failure.
type Engine interface {
	Init() error
	// Close releases backend-global resources. No models or contexts may be
	// used afterwards.
	Close()
	LoadModel(path string, params ModelParams) (Model, error)
}

// Model is a loaded model handle. It is shared read-only by all contexts
// created from it and freed exactly once.
type Model interface {
	NewContext(params ContextParams) (Context, error)
	NewSampler(params SamplerParams) (Sampler, error)
	// Tokenize converts text into engine token ids.
	Tokenize(text string) ([]int, error)
	// NumParams reports the parameter count, estimated if the backend does
	// not expose an exact figure. Used for memory accounting.
	NumParams() uint64
	Free()
}

// Context runs one operation at a time. Callers must serialize access; the
// pool guarantees exclusive ownership while checked out.
type Context interface {
	// Decode feeds tokens through the model. Feeding a multi-token batch
	// starts a fresh sequence; feeding the single previously sampled token
	// continues the current one.
	Decode(tokens []int) error
	// Embeddings returns the embedding vector for the last decoded sequence.
	Embeddings() ([]float32, error)
	Free()
}

// Sampler picks the next token from a context's current logits.
type Sampler interface {
	Sample(ctx Context) (Token, error)
	// Accept informs the sampler of the token the caller committed to, so
	// penalty windows stay accurate.
	Accept(id int)
	Free()
}

// unavailableError signals that the backend is not compiled into this
// binary or failed to initialize.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailability error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing or unusable backend.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
