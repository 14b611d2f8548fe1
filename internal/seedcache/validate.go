package seedcache

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// validateConcurrency caps how many seed databases are checked at once.
const validateConcurrency = 4

// validateSeeds runs PRAGMA quick_check on the SQLite file of every seed
// below dir, in parallel. The first failure cancels the rest.
func validateSeeds(ctx context.Context, dir string, seeds []seed) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateConcurrency)
	for _, s := range seeds {
		g.Go(func() error {
			path := filepath.Join(dir, s.sqlitePath())
			// Opening a missing file would create an empty, valid database.
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrCorruptSeed, s.entry, err)
			}
			if err := quickCheck(gctx, path); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrCorruptSeed, s.entry, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// readOnlyDSN returns a file: URI that opens path read-only. The path is
// escaped, so '?', '#' and '%' in directory names stay part of the path.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{
		Scheme: "file",
		Path:   slashed,
		RawQuery: url.Values{
			"mode":    {"ro"},
			"_pragma": {"busy_timeout(5000)"},
		}.Encode(),
	}
	return u.String(), nil
}

// quickCheck opens path read-only with the sqlite driver and runs
// PRAGMA quick_check.
func quickCheck(ctx context.Context, path string) (retErr error) {
	dsn, err := readOnlyDSN(path)
	if err != nil {
		return fmt.Errorf("sqlite dsn: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("close sqlite: %w", closeErr)
		}
	}()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("scan quick_check row: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("quick_check: %s", strings.Join(problems, "; "))
	}
	return nil
}
