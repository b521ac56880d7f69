// Package project locates the directory a pgq command works from: the
// nearest ancestor holding pgq.ini, or an explicit --dir.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shipq/pgq/internal/config"
)

// FindRoot searches upward from startDir for a pgq.ini and returns the
// directory holding it. found is false when no ancestor has one; err is
// only set for filesystem failures.
func FindRoot(startDir string) (dir string, found bool, err error) {
	if startDir == "" {
		startDir, err = os.Getwd()
		if err != nil {
			return "", false, fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	dir, err = filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for {
		path := filepath.Join(dir, config.ConfigFilename)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return dir, true, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", false, fmt.Errorf("failed to check %s: %w", path, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Resolve returns override as an absolute directory when set. Otherwise it
// returns the nearest directory holding pgq.ini, falling back to the
// current directory so commands run without a config file.
func Resolve(override string) (string, error) {
	if override != "" {
		dir, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", override, err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return "", fmt.Errorf("failed to access %s: %w", override, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", override)
		}
		return dir, nil
	}

	dir, found, err := FindRoot("")
	if err != nil {
		return "", err
	}
	if found {
		return dir, nil
	}
	return os.Getwd()
}
