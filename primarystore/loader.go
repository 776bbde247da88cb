// Package primarystore provides cache.Loader implementations backed by a bun
// database, plus a circuit breaker that keeps a failing primary store from
// being hammered by cache rebuilds.
package primarystore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-guarded-cache/cache"
	"github.com/uptrace/bun"
)

// DefaultIDColumn is the primary key column used when none is given.
const DefaultIDColumn = "id"

// BunLoader returns a cache.Loader that selects a single T row whose
// idColumn equals the requested id. T must be a bun model struct, not a pointer.
// A missing row is reported as cache.ErrNotFound.
func BunLoader[K comparable, T any](db bun.IDB, idColumn string) cache.Loader[K, T] {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}

	return func(ctx context.Context, id K) (T, error) {
		var record T
		err := db.NewSelect().
			Model(&record).
			Where("? = ?", bun.Ident(idColumn), id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			var zero T
			if errors.Is(err, sql.ErrNoRows) {
				return zero, cache.ErrNotFound
			}
			return zero, err
		}
		return record, nil
	}
}

// NotFoundAware adapts a loader whose "no rows" outcome is not already
// cache.ErrNotFound, such as a raw repository lookup.
func NotFoundAware[K comparable, T any](loader cache.Loader[K, T]) cache.Loader[K, T] {
	return func(ctx context.Context, id K) (T, error) {
		record, err := loader(ctx, id)
		if err != nil && IsNoRows(err) {
			var zero T
			return zero, cache.ErrNotFound
		}
		return record, err
	}
}

// IsNoRows reports whether err means the primary store has no matching row.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || cache.IsNotFound(err)
}
