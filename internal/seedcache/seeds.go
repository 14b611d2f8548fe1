package seedcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LiteServ stores a database either as a single SQLite file or as a bundle
// directory holding db.sqlite3 and attachments.
const (
	fileExt   = ".cblite"
	bundleExt = ".cblite2"
	bundleDB  = "db.sqlite3"
	walSuffix = "-wal"
)

// seed is one database found in the seed directory.
type seed struct {
	name   string   // database name, the entry name without extension
	entry  string   // top-level entry name inside the seed directory
	bundle bool     // entry is a .cblite2 directory
	files  []string // files to copy, relative to the seed directory, sorted
}

// sqlitePath returns the SQLite file of the seed, relative to the seed
// directory.
func (s seed) sqlitePath() string {
	if s.bundle {
		return filepath.Join(s.entry, bundleDB)
	}
	return s.entry
}

// collectSeeds lists the databases at the top level of dir, sorted by name.
// A .cblite file brings its -wal companion along when one exists.
func collectSeeds(dir string) ([]seed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed dir %s: %w", dir, err)
	}

	var seeds []seed
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && strings.HasSuffix(name, bundleExt):
			files, err := walkBundle(dir, name)
			if err != nil {
				return nil, err
			}
			seeds = append(seeds, seed{
				name:   strings.TrimSuffix(name, bundleExt),
				entry:  name,
				bundle: true,
				files:  files,
			})
		case e.Type().IsRegular() && strings.HasSuffix(name, fileExt):
			files := []string{name}
			wal := name + walSuffix
			if _, err := os.Stat(filepath.Join(dir, wal)); err == nil {
				files = append(files, wal)
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("stat %s: %w", wal, err)
			}
			seeds = append(seeds, seed{
				name:  strings.TrimSuffix(name, fileExt),
				entry: name,
				files: files,
			})
		}
	}
	slices.SortFunc(seeds, func(a, b seed) int { return strings.Compare(a.entry, b.entry) })
	return seeds, nil
}

// walkBundle returns the regular files below dir/bundle, relative to dir.
func walkBundle(dir, bundle string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(filepath.Join(dir, bundle), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("rel path: %w", err)
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk bundle %s: %w", bundle, err)
	}
	slices.Sort(files)
	return files, nil
}

// names returns the database names of seeds.
func names(seeds []seed) []string {
	out := make([]string, len(seeds))
	for i, s := range seeds {
		out[i] = s.name
	}
	return out
}
