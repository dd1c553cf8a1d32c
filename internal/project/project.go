// Package project locates the directory whose opsql.ini applies to the
// current command, so that opsql works from nested directories.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shipq/opsql/internal/config"
)

// ErrNotDir is returned when an explicit config directory is not a directory.
var ErrNotDir = errors.New("not a directory")

// Root is a directory holding an opsql.ini.
type Root struct {
	// Dir is the absolute path of the directory.
	Dir string

	// ConfigPath is the absolute path of its opsql.ini.
	ConfigPath string
}

// FindRoot searches upward from startDir (the working directory when "")
// for an opsql.ini. found is false when the filesystem root is reached
// without one; err is set only for filesystem errors.
func FindRoot(startDir string) (root *Root, found bool, err error) {
	if startDir == "" {
		if startDir, err = os.Getwd(); err != nil {
			return nil, false, fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for {
		path := filepath.Join(dir, config.ConfigFilename)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return &Root{Dir: dir, ConfigPath: path}, true, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("failed to check %s: %w", path, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, false, nil
		}
		dir = parent
	}
}

// ConfigDir returns the directory to load opsql.ini from. An override must
// be an existing directory but need not contain opsql.ini. Without one the
// nearest enclosing directory with an opsql.ini wins, then the working
// directory.
func ConfigDir(override string) (string, error) {
	if override != "" {
		dir, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("failed to resolve config path: %w", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return "", fmt.Errorf("config path: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("config path %s: %w", override, ErrNotDir)
		}
		return dir, nil
	}

	root, found, err := FindRoot("")
	if err != nil {
		return "", err
	}
	if found {
		return root.Dir, nil
	}
	return os.Getwd()
}
