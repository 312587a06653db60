//go:build !llama

package engine

// No-CGO stub compiled when the 'llama' build tag is not set, keeping
// default builds and CI CGO-free. It refuses to initialize rather than mock
// inference in production binaries.

type llamaEngine struct{}

// NewLlama returns the llama.cpp-backed engine. In this build it fails fast
// on Init and LoadModel.
func NewLlama() Engine { return &llamaEngine{} }

func (e *llamaEngine) Init() error {
	return ErrUnavailable("llama support not built (missing 'llama' build tag)")
}

func (e *llamaEngine) Close() {}

func (e *llamaEngine) LoadModel(path string, params ModelParams) (Model, error) {
	return nil, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}
