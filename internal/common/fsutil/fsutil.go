// Package fsutil holds small filesystem helpers shared by the model
// registry and the CLI.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves a leading "~" or "~/" against the current user's home
// directory. Paths without the prefix pass through untouched.
func ExpandHome(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(rest, "/")), nil
}

// RegularFile reports whether path names an existing regular file. Model
// weights are always plain files; directories and special files fail the
// same preflight as a missing path.
func RegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
