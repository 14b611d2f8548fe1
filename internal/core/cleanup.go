package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/giantswarm/liteservenv/internal/liteserv"
)

// maxParallelDeletes bounds concurrent DELETE requests during cleanup.
const maxParallelDeletes = 10

// isSystemDatabase reports whether name is reserved by the server. Such
// databases are never deleted.
func isSystemDatabase(name string) bool {
	return strings.HasPrefix(name, "_")
}

// cleanDatabases deletes every database that is neither seeded nor a system
// database, then re-lists to confirm that only those remain.
//
// Returns nil immediately if nothing needs deleting.
func (i *Instance) cleanDatabases(ctx context.Context) error {
	client, err := i.restClient()
	if err != nil {
		return fmt.Errorf("build cleanup client: %w", err)
	}

	keep := sets.New(i.cfg.SeedDatabases...)

	stale, err := i.listStaleDatabases(ctx, client, keep)
	if err != nil {
		return err
	}
	if stale.Len() == 0 {
		return nil
	}

	i.log.Debug("cleaning databases", "count", stale.Len())

	var deleted atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDeletes)
	for _, name := range sets.List(stale) {
		g.Go(func() error {
			err := client.DeleteDatabase(gCtx, name)
			switch {
			case err == nil:
				deleted.Add(1)
				return nil
			case errors.Is(err, liteserv.ErrDatabaseNotFound):
				return nil
			default:
				return fmt.Errorf("delete database %s: %w", name, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	deletedDatabasesTotal.Add(int(deleted.Load()))

	remaining, err := i.listStaleDatabases(ctx, client, keep)
	if err != nil {
		return err
	}
	if remaining.Len() > 0 {
		return fmt.Errorf("databases still present after cleanup: %s", strings.Join(sets.List(remaining), ", "))
	}
	return nil
}

// listStaleDatabases returns the databases on the server that are neither in
// keep nor system databases.
func (i *Instance) listStaleDatabases(
	ctx context.Context,
	client *liteserv.Client,
	keep sets.Set[string],
) (sets.Set[string], error) {
	names, err := client.AllDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list databases for cleanup: %w", err)
	}
	stale := sets.New[string]()
	for _, name := range names {
		if isSystemDatabase(name) {
			continue
		}
		stale.Insert(name)
	}
	return stale.Difference(keep), nil
}
