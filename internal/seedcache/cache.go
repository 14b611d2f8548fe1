package seedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/giantswarm/liteservenv/internal/fileutil"
	"github.com/giantswarm/liteservenv/internal/sentinel"
)

const (
	// ErrNoSeedDatabases is returned when the seed directory holds no
	// .cblite files or .cblite2 bundles.
	ErrNoSeedDatabases = sentinel.Error("no seed databases found")

	// ErrCorruptSeed is returned when a seed database fails its integrity
	// check.
	ErrCorruptSeed = sentinel.Error("seed database failed integrity check")
)

// Config holds configuration for EnsureCache.
type Config struct {
	SeedDir  string        // directory holding the seed databases
	CacheDir string        // directory holding cache entries
	Timeout  time.Duration // optional bound on the whole call
	Logger   *slog.Logger  // nil uses slog.Default
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) validate() error {
	var errs []error
	if c.SeedDir == "" {
		errs = append(errs, errors.New("seed dir must not be empty"))
	}
	if c.CacheDir == "" {
		errs = append(errs, errors.New("cache dir must not be empty"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Result describes a ready cache entry.
type Result struct {
	CachePath string   // directory holding validated copies of the seeds
	Hash      string   // hash of the seed files
	Created   bool     // false when an existing entry was reused
	Databases []string // seeded database names, sorted
}

// EnsureCache returns the cache entry for the current content of
// cfg.SeedDir, building and validating it first if no entry exists.
func EnsureCache(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	logger := cfg.logger()

	seeds, err := collectSeeds(cfg.SeedDir)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSeedDatabases, cfg.SeedDir)
	}

	hash, err := computeSeedHash(cfg.SeedDir, seeds)
	if err != nil {
		return nil, fmt.Errorf("compute seed hash: %w", err)
	}

	result := &Result{
		CachePath: filepath.Join(cfg.CacheDir, "seed-"+hash),
		Hash:      hash,
		Databases: names(seeds),
	}

	if ok, err := exists(result.CachePath); err != nil {
		return nil, err
	} else if ok {
		logger.Info("using existing seed cache", "cache_path", result.CachePath, "hash", hash)
		return result, nil
	}

	if err := fileutil.EnsureDir(cfg.CacheDir); err != nil {
		return nil, err
	}

	lockPath := result.CachePath + ".lock"
	logger.Debug("acquiring cache lock", "lock_path", lockPath)
	lock, err := acquireFileLock(ctx, lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer releaseFileLock(logger, lock)

	// Another process may have built it while we waited.
	if ok, err := exists(result.CachePath); err != nil {
		return nil, err
	} else if ok {
		logger.Info("using existing seed cache (created while waiting)", "cache_path", result.CachePath, "hash", hash)
		return result, nil
	}

	logger.Info("creating seed cache", "seed_dir", cfg.SeedDir, "hash", hash, "databases", len(seeds))
	if err := createCache(ctx, cfg, result.CachePath, seeds); err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	result.Created = true
	return result, nil
}

// createCache copies the seeds into a build directory, validates the copies
// and renames the build directory to cachePath.
func createCache(ctx context.Context, cfg Config, cachePath string, seeds []seed) error {
	logger := cfg.logger()
	startTime := time.Now()

	buildDir, err := os.MkdirTemp(cfg.CacheDir, "seed-build-")
	if err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}
	defer func() {
		// Gone after a successful rename.
		if rmErr := os.RemoveAll(buildDir); rmErr != nil {
			logger.Debug("failed to remove build dir", "dir", buildDir, "err", rmErr)
		}
	}()

	for _, s := range seeds {
		for _, rel := range s.files {
			if err := fileutil.CopyFile(
				filepath.Join(cfg.SeedDir, rel),
				filepath.Join(buildDir, rel),
				&fileutil.CopyFileOptions{Sync: true},
			); err != nil {
				return fmt.Errorf("copy seed %s: %w", s.entry, err)
			}
		}
	}

	if err := validateSeeds(ctx, buildDir, seeds); err != nil {
		return err
	}

	if err := os.Rename(buildDir, cachePath); err != nil {
		return fmt.Errorf("rename build dir to cache: %w", err)
	}

	logger.Info("seed cache created", "cache_path", cachePath, "elapsed", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
