package di

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-guarded-cache/cache"
	"github.com/redis/go-redis/v9"
)

func newBenchContainer(b *testing.B, strategy cache.Strategy) *Container {
	b.Helper()

	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = client.Close() })

	config := cache.DefaultConfig()
	config.Strategy = strategy

	container, err := NewContainer(config, WithStore(cache.NewRedisStore(client, "", nil)))
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	b.Cleanup(func() { _ = container.Close(context.Background()) })
	return container
}

func benchLoader(loads *atomic.Int64) cache.Loader[int64, User] {
	return func(ctx context.Context, id int64) (User, error) {
		loads.Add(1)
		if id < 0 {
			return User{}, cache.ErrNotFound
		}
		return User{ID: fmt.Sprint(id), Name: "Bench User"}, nil
	}
}

// BenchmarkQueryHit measures the hot path of each strategy once the key is cached.
func BenchmarkQueryHit(b *testing.B) {
	for _, strategy := range []cache.Strategy{cache.StrategyPassThrough, cache.StrategyMutex, cache.StrategyLogicalExpire} {
		b.Run(string(strategy), func(b *testing.B) {
			container := newBenchContainer(b, strategy)
			var loads atomic.Int64

			svc, err := NewService[int64, User](container, benchLoader(&loads))
			if err != nil {
				b.Fatalf("NewService() failed: %v", err)
			}
			ctx := context.Background()
			if _, err := svc.Warm(ctx, 1); err != nil {
				b.Fatalf("Warm() failed: %v", err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := svc.Query(ctx, 1); err != nil {
					b.Fatalf("Query() failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkQueryNullSentinel measures repeated lookups of an absent id.
func BenchmarkQueryNullSentinel(b *testing.B) {
	container := newBenchContainer(b, cache.StrategyPassThrough)
	var loads atomic.Int64

	svc, err := NewService[int64, User](container, benchLoader(&loads))
	if err != nil {
		b.Fatalf("NewService() failed: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Query(ctx, -1); !cache.IsNotFound(err) {
			b.Fatalf("expected not found, got %v", err)
		}
	}
	b.StopTimer()

	if loads.Load() != 1 {
		b.Errorf("expected one primary load, got %d", loads.Load())
	}
}

// BenchmarkConcurrentMutexQuery measures parallel reads over a small key set.
func BenchmarkConcurrentMutexQuery(b *testing.B) {
	container := newBenchContainer(b, cache.StrategyMutex)
	var loads atomic.Int64

	svc, err := NewService[int64, User](container, benchLoader(&loads))
	if err != nil {
		b.Fatalf("NewService() failed: %v", err)
	}

	var next atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			id := next.Add(1) % 16
			if _, err := svc.Query(ctx, id); err != nil {
				b.Errorf("Query() failed: %v", err)
				return
			}
		}
	})
}

// BenchmarkLocalTierHit compares the near cache hit path with a Redis hit.
func BenchmarkLocalTierHit(b *testing.B) {
	container := newBenchContainer(b, cache.StrategyPassThrough)
	local := cache.DefaultLocalTierConfig()
	local.TTL = time.Minute
	container.config.LocalTier = &local

	var loads atomic.Int64
	querier, err := NewQuerier[int64, User](container, benchLoader(&loads))
	if err != nil {
		b.Fatalf("NewQuerier() failed: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := querier.Query(ctx, 1); err != nil {
			b.Fatalf("Query() failed: %v", err)
		}
	}
}

// BenchmarkKeySerialization measures cache key generation for common id types.
func BenchmarkKeySerialization(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer()
	ids := []any{int64(42), "user-123", struct {
		Tenant string `json:"tenant"`
		Seq    int    `json:"seq"`
	}{"acme", 7}}

	for _, id := range ids {
		b.Run(fmt.Sprintf("%T", id), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = serializer.SerializeKey("cache", "user", id)
			}
		})
	}
}
