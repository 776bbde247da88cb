package di

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-guarded-cache/cache"
	"github.com/goliatone/go-guarded-cache/repositorycache"
	"go.uber.org/zap"
)

// Container wires the shared pieces of the cache layer: one store, one
// rebuild pool and one key serializer, built from a single cache.Config.
// Services for individual entities are created from it with NewService,
// NewQuerier or NewCachedRepository.
type Container struct {
	config        cache.Config
	store         cache.Store
	closer        func() error
	pool          *cache.RebuildPool
	keySerializer cache.KeySerializer
	logger        *zap.Logger
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore uses an existing store instead of dialing config.Redis. The
// caller keeps ownership of the store.
func WithStore(store cache.Store) Option {
	return func(c *Container) {
		c.store = store
	}
}

// WithKeySerializer overrides the key serializer shared by all services.
func WithKeySerializer(serializer cache.KeySerializer) Option {
	return func(c *Container) {
		if serializer != nil {
			c.keySerializer = serializer
		}
	}
}

// NewContainer validates config, connects to Redis unless a store was given,
// and starts the shared rebuild pool. config.Entity may be empty; each
// service then derives its entity from its record type.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	c := &Container{
		config:        config,
		keySerializer: cache.NewDefaultKeySerializer(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := config.ValidateShared(); err != nil {
		return nil, err
	}

	if c.store == nil {
		if config.Redis.URL == "" {
			return nil, goerrors.New("redis url is required when no store is provided", goerrors.CategoryValidation).
				WithTextCode(cache.TextCodeInvalidConfig)
		}
		store, err := cache.DialRedis(config.Redis, c.logger)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.closer = store.Close
	}

	pool, err := cache.NewRebuildPool(config.PoolConfig(), c.logger)
	if err != nil {
		c.closeStore()
		return nil, err
	}
	c.pool = pool

	return c, nil
}

// NewContainerFromFile loads a YAML configuration and builds a container from it.
func NewContainerFromFile(path string, opts ...Option) (*Container, error) {
	config, err := cache.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(config, opts...)
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Store returns the shared store.
func (c *Container) Store() cache.Store {
	return c.store
}

// Pool returns the shared rebuild pool.
func (c *Container) Pool() *cache.RebuildPool {
	return c.pool
}

// KeySerializer returns the key serializer shared by all services.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Close drains the rebuild pool, then closes the store if the container
// dialed it. Both steps run even when the first fails.
func (c *Container) Close(ctx context.Context) error {
	poolErr := c.pool.Close(ctx)
	return errors.Join(poolErr, c.closeStore())
}

func (c *Container) closeStore() error {
	if c.closer == nil {
		return nil
	}
	closer := c.closer
	c.closer = nil
	return closer()
}

// NewService builds a cache.Service on the container's store and pool.
// opts are applied after the container defaults, so WithEntity or WithCodec
// can specialize one service.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
func NewService[K comparable, T any](c *Container, loader cache.Loader[K, T], opts ...cache.Option) (*cache.Service[K, T], error) {
	base := []cache.Option{
		cache.WithLogger(c.logger),
		cache.WithRebuildPool(c.pool),
		cache.WithKeySerializer(c.keySerializer),
	}
	return cache.NewService[K, T](c.config, c.store, loader, append(base, opts...)...)
}

// NewQuerier is NewService plus the in-process near cache when
// config.LocalTier is set.
func NewQuerier[K comparable, T any](c *Container, loader cache.Loader[K, T], opts ...cache.Option) (cache.Querier[K, T], error) {
	svc, err := NewService[K, T](c, loader, opts...)
	if err != nil {
		return nil, err
	}
	if c.config.LocalTier == nil {
		return svc, nil
	}
	tier, err := cache.NewLocalTier[K, T](*c.config.LocalTier, svc)
	if err != nil {
		return nil, err
	}
	return tier, nil
}

// NewCachedRepository wraps base so GetByID is served through the guarded
// cache and writes invalidate it. WarmOnMiss defaults to true so the logical
// strategy answers for cold or invalidated ids; pass cache.WithWarmOnMiss(false)
// to opt out.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...cache.Option) (*repositorycache.CachedRepository[T], error) {
	opts = append([]cache.Option{cache.WithWarmOnMiss(true)}, opts...)
	guard, err := NewQuerier[string, T](c, repositorycache.Loader(base), opts...)
	if err != nil {
		return nil, err
	}
	return repositorycache.New(base, guard, repositorycache.WithLogger(c.logger)), nil
}
