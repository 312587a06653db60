package manager

// Event represents a runtime lifecycle event.
// Minimal and stable: name + model name and optional fields via key/values.
//
// Emitted names: model_load_start, model_load_ready, model_load_reject,
// model_unload_start, model_unload_timeout, model_unload_done,
// context_evicted, stream_start, stream_finish, stream_error, stream_stop,
// batch_submit, batch_done.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
