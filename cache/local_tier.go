package cache

import (
	"context"
	"errors"

	"github.com/goliatone/go-guarded-cache/internal/cacheinfra"
)

// LocalTier is an optional in-process near cache in front of a Querier.
// Concurrent lookups for the same id share one call to the next tier, and
// ErrNotFound results are remembered when MissingRecordStorage is enabled.
// Entries live for the local TTL only, so keep it short.
type LocalTier[K comparable, T any] struct {
	next       Querier[K, T]
	tier       *cacheinfra.Tier[T]
	serializer KeySerializer
}

// NewLocalTier wraps next with an in-process cache configured by cfg.
func NewLocalTier[K comparable, T any](cfg LocalTierConfig, next Querier[K, T]) (*LocalTier[K, T], error) {
	tier, err := cacheinfra.NewTier[T](cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &LocalTier[K, T]{
		next:       next,
		tier:       tier,
		serializer: NewDefaultKeySerializer(),
	}, nil
}

// Query returns the local copy of id or asks the next tier.
func (l *LocalTier[K, T]) Query(ctx context.Context, id K) (T, error) {
	rec, err := l.tier.GetOrFetch(ctx, l.key(id), func(ctx context.Context) (T, error) {
		rec, err := l.next.Query(ctx, id)
		if IsNotFound(err) {
			var zero T
			return zero, cacheinfra.ErrRecordMissing
		}
		return rec, err
	})
	if errors.Is(err, cacheinfra.ErrRecordMissing) {
		var zero T
		return zero, ErrNotFound
	}
	return rec, err
}

// Invalidate drops the local copy and invalidates the next tier.
func (l *LocalTier[K, T]) Invalidate(ctx context.Context, id K) error {
	l.tier.Delete(l.key(id))
	return l.next.Invalidate(ctx, id)
}

func (l *LocalTier[K, T]) key(id K) string {
	return l.serializer.SerializeKey("", id)
}
