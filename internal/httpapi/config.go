package httpapi

import (
	"inferd/pkg/types"
)

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the next mux built.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// modelFiles optionally supplies on-disk model files for GET /models.
var modelFiles func() []types.ModelFile

// SetModelFileLister installs a lister for model files discovered on disk.
// GET /models omits the available list when no lister is installed.
func SetModelFileLister(fn func() []types.ModelFile) { modelFiles = fn }
