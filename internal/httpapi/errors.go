package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps runtime errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case manager.IsModelNotFound(err),
		manager.IsModelFileNotFound(err),
		manager.IsSessionNotFound(err),
		manager.IsRequestNotFound(err):
		return http.StatusNotFound
	case manager.IsCapacityExhausted(err):
		return http.StatusTooManyRequests
	case manager.IsMemoryLimitExceeded(err):
		return http.StatusInsufficientStorage
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
