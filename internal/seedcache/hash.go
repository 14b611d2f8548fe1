package seedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// computeSeedHash hashes the relative path and content of every seed file,
// in seed order. It returns the first 16 hex characters of the SHA-256.
func computeSeedHash(dir string, seeds []seed) (string, error) {
	h := sha256.New()
	for _, s := range seeds {
		for _, rel := range s.files {
			h.Write([]byte(filepath.ToSlash(rel) + "\x00"))
			if err := hashFile(h, filepath.Join(dir, rel)); err != nil {
				return "", err
			}
			// Separator after the content keeps a/b and ab from colliding.
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the seed dir listing
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
