package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-guarded-cache/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the shared key-value backend. Implementations perform no retries
// and no serialization; failures surface as backing store errors.
type Store interface {
	// Get returns the raw value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes value at key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Removing an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// SetIfAbsent creates key with ttl and reports whether this call created it.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only when its value equals expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
}

// ClosableStore is a Store that owns its connection.
type ClosableStore interface {
	Store
	Close() error
}

var _ ClosableStore = (*cacheinfra.RedisStore)(nil)

// NewRedisStore builds a Store over an existing go-redis client. The caller
// keeps ownership of the client.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) Store {
	return cacheinfra.NewRedisStore(client, keyPrefix, logger)
}

// DialRedis connects to the Redis server described by cfg and returns a store
// that closes the connection on Close.
func DialRedis(cfg RedisConfig, logger *zap.Logger) (ClosableStore, error) {
	return cacheinfra.DialRedis(cfg.toInternal(), logger)
}
