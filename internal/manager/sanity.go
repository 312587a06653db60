package manager

import (
	"inferd/internal/common/fsutil"
)

// SanityReport describes runtime checks for the inference backend and the
// model artifacts the process is configured to serve.
type SanityReport struct {
	EngineReady   bool     `json:"engine_ready"`
	MissingModels []string `json:"missing_models,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// SanityCheck probes the backend and the given model paths. It does not
// mutate registry state and is safe to call at any time.
func (m *Manager) SanityCheck(paths []string) SanityReport {
	var r SanityReport
	m.mu.Lock()
	err := m.ensureEngineLocked()
	m.mu.Unlock()
	if err != nil {
		r.Error = err.Error()
	} else {
		r.EngineReady = true
	}
	for _, p := range paths {
		expanded, err := fsutil.ExpandHome(p)
		if err != nil || expanded == "" || !fsutil.RegularFile(expanded) {
			r.MissingModels = append(r.MissingModels, p)
		}
	}
	return r
}
