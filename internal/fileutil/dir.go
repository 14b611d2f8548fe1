// Package fileutil holds the filesystem helpers used to lay out instance
// directories and to copy seed databases into them.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates path and any missing parents with mode 0755.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// EnsureDirForFile creates the parent directory of filePath.
func EnsureDirForFile(filePath string) error {
	if err := EnsureDir(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", filePath, err)
	}
	return nil
}

// ResetDir removes path with everything below it and recreates it empty.
// LiteServ keeps one file (or directory) per database under its --dir, so a
// reset directory means a server that starts with no databases at all.
func ResetDir(path string) error {
	if path == "" {
		return ErrEmptyDst
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return EnsureDir(path)
}
