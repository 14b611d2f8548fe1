package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/giantswarm/liteservenv/internal/sentinel"
)

// ErrEmptySrc is returned when a source path is empty.
const ErrEmptySrc = sentinel.Error("source path must not be empty")

// ErrEmptyDst is returned when a destination path is empty.
const ErrEmptyDst = sentinel.Error("destination path must not be empty")

// CopyFileOptions configures CopyFile. A nil *CopyFileOptions copies with
// mode 0644, without fsync, straight into dst.
type CopyFileOptions struct {
	Mode   *os.FileMode // permissions of dst; nil keeps 0644
	Sync   bool         // fsync dst before closing
	Atomic bool         // write a temp file next to dst and rename it into place
}

// CopyFile copies src to dst, creating dst's parent directories.
// On failure the partially written destination is removed.
func CopyFile(src, dst string, opts *CopyFileOptions) (retErr error) {
	if src == "" {
		return ErrEmptySrc
	}
	if dst == "" {
		return ErrEmptyDst
	}

	var o CopyFileOptions
	if opts != nil {
		o = *opts
	}
	mode := os.FileMode(0o644)
	if o.Mode != nil {
		mode = *o.Mode
	}

	if err := EnsureDirForFile(dst); err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}

	in, err := os.Open(src) //nolint:gosec // G304: paths come from configuration
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("close source: %w", closeErr)
		}
	}()

	out, writePath, err := createDst(dst, mode, o.Atomic)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(writePath)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if o.Sync || o.Atomic {
		if err := out.Sync(); err != nil {
			_ = out.Close()
			return fmt.Errorf("sync: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	if writePath != dst {
		if err := os.Rename(writePath, dst); err != nil {
			return fmt.Errorf("rename temp file to destination: %w", err)
		}
	}
	return nil
}

// createDst opens the file CopyFile writes into and returns its path, which
// is a temp file in dst's directory when atomic is set.
func createDst(dst string, mode os.FileMode, atomic bool) (*os.File, string, error) {
	if !atomic {
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode) //nolint:gosec // G304: paths come from configuration
		if err != nil {
			return nil, "", fmt.Errorf("create destination: %w", err)
		}
		return f, dst, nil
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".tmp-copy-*")
	if err != nil {
		return nil, "", fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, "", fmt.Errorf("chmod temp file: %w", err)
	}
	return f, f.Name(), nil
}

// CopyDir recursively copies the regular files and directories below src
// into dst, keeping each file's permission bits. Symlinks and other special
// files are skipped. dst is created if missing; existing files are
// overwritten.
func CopyDir(src, dst string) error {
	if src == "" {
		return ErrEmptySrc
	}
	if dst == "" {
		return ErrEmptyDst
	}

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("rel path: %w", err)
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return EnsureDir(target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			mode := info.Mode().Perm()
			return CopyFile(path, target, &CopyFileOptions{Mode: &mode})
		default:
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("copy directory %s to %s: %w", src, dst, err)
	}
	return nil
}
