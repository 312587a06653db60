package main

import (
	"context"
	"path/filepath"
	"strings"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

// withRuntime spins up a manager with one model loaded, runs fn, and tears
// the runtime down again. The model name defaults to the file's base name.
func withRuntime(ctx context.Context, engineName, name string, mc types.ModelConfig, fn func(ctx context.Context, m *manager.Manager, model string) error) error {
	eng, err := buildEngine(engineName)
	if err != nil {
		return err
	}
	m := manager.New(eng, manager.Config{})
	defer m.Cleanup()

	if name == "" {
		base := filepath.Base(mc.Path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := m.LoadModel(ctx, name, mc); err != nil {
		return err
	}
	return fn(ctx, m, name)
}
