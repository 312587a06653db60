package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// GGUFScanner discovers model artifacts on disk.
type GGUFScanner struct{}

// NewGGUFScanner returns a scanner for *.gguf model files.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan lists *.gguf files directly under dir, in filename order. The
// filename doubles as the model's default name; Path is absolute.
func (s *GGUFScanner) Scan(dir string) ([]types.ModelFile, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []types.ModelFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		var sizeMB int64
		if info, err := e.Info(); err == nil {
			sizeMB = info.Size() / (1 << 20)
		}
		files = append(files, types.ModelFile{Name: name, Path: filepath.Join(abs, name), SizeMB: sizeMB})
	}
	return files, nil
}

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]types.ModelFile, error) {
	return NewGGUFScanner().Scan(dir)
}
