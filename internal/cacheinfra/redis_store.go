package cacheinfra

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TextCodeBackingStore marks errors returned by the key-value backend.
const TextCodeBackingStore = "BACKING_STORE_ERROR"

const storeTracerName = "github.com/goliatone/go-guarded-cache/store"

// compareAndDeleteScript deletes KEYS[1] only when its value equals ARGV[1].
// Returns 1 when the key was deleted, 0 otherwise.
var compareAndDeleteScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisConfig holds the connection settings for the Redis store.
type RedisConfig struct {
	// URL is the connection URL, redis://[user:password@]host:port[/db].
	URL string

	// PoolSize overrides the client pool size when greater than 0.
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix is prepended to every key. Empty keeps keys as given.
	KeyPrefix string
}

// Validate checks if the configuration values are valid.
func (c RedisConfig) Validate() error {
	if c.URL == "" {
		return &ConfigError{Field: "URL", Message: "must not be empty"}
	}
	if c.PoolSize < 0 {
		return &ConfigError{Field: "PoolSize", Message: "must be non-negative"}
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return &ConfigError{Field: "Timeouts", Message: "must be non-negative"}
	}
	return nil
}

// RedisStore is a key-value store backed by Redis. It performs no retries and
// no serialization; every failure is returned to the caller as a backing
// store error.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of the
// client, Close will not close it.
func NewRedisStore(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.Named("store"),
	}
}

// DialRedis parses the configuration, connects and pings the server.
func DialRedis(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid redis URL").
			WithTextCode(TextCodeBackingStore)
	}
	applyPoolOptions(opts, cfg)

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "redis connection failed").
			WithTextCode(TextCodeBackingStore)
	}

	store := NewRedisStore(client, cfg.KeyPrefix, logger)
	store.owned = true

	store.logger.Info("redis store initialized",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("keyPrefix", cfg.KeyPrefix))

	return store, nil
}

func applyPoolOptions(opts *redis.Options, cfg RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

func ping(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Client exposes the underlying redis client.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) resolveKey(key string) string {
	return s.prefix + key
}

// Get returns the value stored at key. A missing key yields ok=false and a nil error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := s.startSpan(ctx, "cache.store.Get", key)
	defer span.End()
	defer observeStoreOp("get", time.Now())

	val, err := s.client.Get(ctx, s.resolveKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail(span, "get", key, err)
	}

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(val)),
	)
	return val, true, nil
}

// Set stores value at key. A ttl <= 0 stores the key without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "cache.store.Set", key)
	defer span.End()
	defer observeStoreOp("set", time.Now())

	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, s.resolveKey(key), value, ttl).Err(); err != nil {
		return s.fail(span, "set", key, err)
	}

	s.logger.Debug("store set",
		zap.String("key", key),
		zap.Duration("ttl", ttl),
		zap.Int("size", len(value)))
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "cache.store.Delete", key)
	defer span.End()
	defer observeStoreOp("delete", time.Now())

	if err := s.client.Del(ctx, s.resolveKey(key)).Err(); err != nil {
		return s.fail(span, "delete", key, err)
	}
	return nil
}

// SetIfAbsent atomically creates key with the given ttl. It reports true only
// when this call created the key.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ctx, span := s.startSpan(ctx, "cache.store.SetIfAbsent", key)
	defer span.End()
	defer observeStoreOp("set_if_absent", time.Now())

	created, err := s.client.SetNX(ctx, s.resolveKey(key), value, ttl).Result()
	if err != nil {
		return false, s.fail(span, "set_if_absent", key, err)
	}

	span.SetAttributes(attribute.Bool("cache.created", created))
	return created, nil
}

// CompareAndDelete atomically deletes key when its current value equals expected.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	ctx, span := s.startSpan(ctx, "cache.store.CompareAndDelete", key)
	defer span.End()
	defer observeStoreOp("compare_and_delete", time.Now())

	deleted, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.resolveKey(key)}, expected).Int64()
	if err != nil {
		return false, s.fail(span, "compare_and_delete", key, err)
	}

	span.SetAttributes(attribute.Bool("cache.deleted", deleted == 1))
	return deleted == 1, nil
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	s.logger.Info("redis store closing")
	return s.client.Close()
}

func (s *RedisStore) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return otel.Tracer(storeTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
}

func (s *RedisStore) fail(span trace.Span, op, key string, err error) error {
	GetStoreMetrics().errorsTotal.WithLabelValues(op).Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	s.logger.Error("redis operation failed",
		zap.String("operation", op),
		zap.String("key", key),
		zap.Error(err))

	return goerrors.Wrap(err, goerrors.CategoryExternal, "cache store "+op+" failed").
		WithTextCode(TextCodeBackingStore).
		WithMetadata(map[string]any{"key": key, "operation": op})
}
