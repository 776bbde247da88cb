// Package cache provides a read-through cache over a shared key-value store
// that shields a slow primary store from penetration and breakdown.
//
// # Overview
//
// A Service[K, T] serves records of type T by id K. Entries live in the Store
// under cache:<entity>:<id>; rebuild locks live under lock:<entity>:<id>.
// Three strategies are available and Config.Strategy picks the one Query uses:
//
//   - StrategyPassThrough: cache payloads with FreshTTL and absences as null
//     sentinels with NullTTL. No concurrency guard.
//   - StrategyMutex: like pass-through, but on a miss one caller per key
//     holds a lock and rebuilds while the others back off and re-read.
//   - StrategyLogicalExpire: entries never expire in the store. Each carries
//     an expireAt; stale entries are served while one background task
//     rebuilds them on the RebuildPool. Keys must be warmed first.
//
// # Basic Usage
//
//	store, err := cache.DialRedis(cfg.Redis, logger)
//	if err != nil {
//		return err
//	}
//
//	shops, err := cache.NewService[int64, Shop](cfg, store, loadShop,
//		cache.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer shops.Close(ctx)
//
//	shop, err := shops.Query(ctx, 42)
//	if cache.IsNotFound(err) {
//		// absent in the primary store, possibly served from a null sentinel
//	}
//
// The loader signals absence by returning an error for which IsNotFound is
// true, typically ErrNotFound or any go-errors error in the not_found category.
//
// # Writes
//
// Writes go to the primary store first and the cache entry is dropped after:
//
//	err := shops.UpdateAndInvalidate(ctx, shop.ID, func(ctx context.Context) error {
//		return repo.Update(ctx, shop)
//	})
//
// # Locks
//
// Locks are created with SetIfAbsent and carry a random owner token. Release
// is a compare-and-delete on that token, so a holder whose lock self-expired
// cannot remove a lock taken over by someone else. LockTTL must exceed the
// slowest expected rebuild.
//
// # Errors
//
// Errors are go-errors values with a category and a text code. Use the Is*
// helpers instead of comparing against sentinels, since wrapping clones the
// underlying error.
//
// # See Also
//
// The repositorycache package adapts a go-repository-bun repository on top of
// a Service. The pkg/di package wires store, pool and services from a Config.
package cache
