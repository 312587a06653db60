package manager

import (
	"fmt"

	"inferd/internal/engine"
)

// modelNotFoundError reports a name with no loaded model behind it.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound returns an error for a model name that is not loaded.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates a missing model name.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// capacityExhaustedError signals a full bounded resource: a model's pool at
// its maximum size with every context in use, or the batch queue at depth.
// Callers may retry or reject.
type capacityExhaustedError struct{ scope string }

func (e capacityExhaustedError) Error() string {
	return "capacity exhausted: " + e.scope
}

// ErrCapacityExhausted constructs a capacityExhaustedError.
func ErrCapacityExhausted(scope string) error { return capacityExhaustedError{scope: scope} }

// IsCapacityExhausted reports whether err indicates pool exhaustion (the
// too-busy condition, mapped to 429 by HTTP layers).
func IsCapacityExhausted(err error) bool {
	_, ok := err.(capacityExhaustedError)
	return ok
}

// memoryLimitError signals that loading a model would exceed the configured
// memory limit.
type memoryLimitError struct {
	name   string
	used   uint64
	needed uint64
	limit  uint64
}

func (e memoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded loading %s: used %d + need %d > limit %d", e.name, e.used, e.needed, e.limit)
}

// ErrMemoryLimitExceeded constructs a memoryLimitError.
func ErrMemoryLimitExceeded(name string, used, needed, limit uint64) error {
	return memoryLimitError{name: name, used: used, needed: needed, limit: limit}
}

// IsMemoryLimitExceeded reports whether err indicates the memory budget
// rejected a load.
func IsMemoryLimitExceeded(err error) bool {
	_, ok := err.(memoryLimitError)
	return ok
}

// modelFileNotFoundError signals a load request for a nonexistent file.
type modelFileNotFoundError struct{ path string }

func (e modelFileNotFoundError) Error() string { return "model file not found: " + e.path }

// ErrModelFileNotFound constructs a modelFileNotFoundError.
func ErrModelFileNotFound(path string) error { return modelFileNotFoundError{path: path} }

// IsModelFileNotFound reports whether err indicates a missing model file.
func IsModelFileNotFound(err error) bool {
	_, ok := err.(modelFileNotFoundError)
	return ok
}

// engineLoadError wraps an engine failure during backend init or model load.
type engineLoadError struct {
	name  string
	cause error
}

func (e engineLoadError) Error() string {
	return fmt.Sprintf("engine failed to load %s: %v", e.name, e.cause)
}

func (e engineLoadError) Unwrap() error { return e.cause }

// ErrEngineLoad constructs an engineLoadError.
func ErrEngineLoad(name string, cause error) error {
	return engineLoadError{name: name, cause: cause}
}

// IsEngineLoadFailure reports whether err indicates the engine could not
// load a model. Backend-unavailable errors from stub builds count.
func IsEngineLoadFailure(err error) bool {
	if _, ok := err.(engineLoadError); ok {
		return true
	}
	return engine.IsUnavailable(err)
}

// tokenizeError wraps an engine failure while tokenizing a prompt.
type tokenizeError struct {
	name  string
	cause error
}

func (e tokenizeError) Error() string {
	return fmt.Sprintf("tokenize failed for %s: %v", e.name, e.cause)
}

func (e tokenizeError) Unwrap() error { return e.cause }

// ErrTokenize constructs a tokenizeError.
func ErrTokenize(name string, cause error) error { return tokenizeError{name: name, cause: cause} }

// IsTokenizeFailure reports whether err indicates prompt tokenization failed.
func IsTokenizeFailure(err error) bool {
	_, ok := err.(tokenizeError)
	return ok
}

// decodeError wraps an engine failure while decoding or sampling.
type decodeError struct {
	name  string
	cause error
}

func (e decodeError) Error() string {
	return fmt.Sprintf("decode failed for %s: %v", e.name, e.cause)
}

func (e decodeError) Unwrap() error { return e.cause }

// ErrDecode constructs a decodeError.
func ErrDecode(name string, cause error) error { return decodeError{name: name, cause: cause} }

// IsDecodeFailure reports whether err indicates a decode or sampling step
// failed mid-generation.
func IsDecodeFailure(err error) bool {
	_, ok := err.(decodeError)
	return ok
}

// sessionNotFoundError reports an unknown streaming session id.
type sessionNotFoundError struct{ id string }

func (e sessionNotFoundError) Error() string { return "session not found: " + e.id }

// ErrSessionNotFound constructs a sessionNotFoundError.
func ErrSessionNotFound(id string) error { return sessionNotFoundError{id: id} }

// IsSessionNotFound reports whether err indicates an unknown session id.
func IsSessionNotFound(err error) bool {
	_, ok := err.(sessionNotFoundError)
	return ok
}

// requestNotFoundError reports an unknown batch request id.
type requestNotFoundError struct{ id string }

func (e requestNotFoundError) Error() string { return "request not found: " + e.id }

// ErrRequestNotFound constructs a requestNotFoundError.
func ErrRequestNotFound(id string) error { return requestNotFoundError{id: id} }

// IsRequestNotFound reports whether err indicates an unknown request id.
func IsRequestNotFound(err error) bool {
	_, ok := err.(requestNotFoundError)
	return ok
}
