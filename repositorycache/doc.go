// Package repositorycache puts a guarded cache in front of a go-repository-bun
// repository.
//
// # Overview
//
// CachedRepository[T] embeds a base repository.Repository[T] and overrides
// the methods that read or change a single record by id. Everything else,
// including List, Count, Raw and every *Tx read, is delegated unchanged.
//
// # Basic Usage
//
//	base := myrepo.NewUserRepository(db)
//
//	cfg := cache.DefaultConfig()
//	cfg.Entity = "user"
//	cfg.Strategy = cache.StrategyMutex
//
//	svc, err := cache.NewService[string, User](cfg, store, repositorycache.Loader(base))
//	if err != nil {
//		return err
//	}
//	users := repositorycache.New(base, svc)
//
//	user, err := users.GetByID(ctx, "user-123")
//
// The guard can be any cache.Querier, so a cache.LocalTier may sit in front of
// the service. The pkg/di container does this wiring from a single Config.
//
// # Reads
//
// GetByID without criteria is served through the guard and therefore follows
// the configured strategy: absent ids are remembered with a null sentinel,
// concurrent misses are collapsed by the rebuild lock. GetByID with criteria
// goes straight to the base repository.
//
// With StrategyLogicalExpire a cold key returns cache.ErrNotFound until it is
// warmed unless WarmOnMiss is on. di.NewCachedRepository turns it on, so cold
// and freshly invalidated ids load inline once and are then served from Redis.
// A guard built by hand needs Config.WarmOnMiss or cache.WithWarmOnMiss.
//
// # Writes
//
// Create, Update, Upsert, Delete, ForceDelete and their Many/Tx variants run
// the base write first and invalidate the affected ids afterwards. Creates
// invalidate too, which clears a null sentinel cached for the new id.
//
// DeleteMany and DeleteWhere do not know which rows they removed, so they
// invalidate every id this instance has served through GetByID.
//
// Ids are taken from a field named ID or Id, or from the field tagged
// `bun:",pk"`, formatted with fmt.Sprint.
//
// # Error Handling
//
// Errors from the base repository are returned unchanged and skip
// invalidation. When the write succeeds but invalidation fails, the written
// record is returned together with the backing store error so callers can
// retry the invalidation.
//
// Tx writes invalidate as soon as the statement succeeds, before the
// transaction commits. A concurrent reader can re-cache the old row in that
// window; invalidate again after commit when that matters.
package repositorycache
