package cache

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Loader reads one record from the primary store. It returns an error for
// which IsNotFound is true when no record exists for id.
type Loader[K comparable, T any] func(ctx context.Context, id K) (T, error)

// Querier is the read side shared by Service and LocalTier.
type Querier[K comparable, T any] interface {
	Query(ctx context.Context, id K) (T, error)
	Invalidate(ctx context.Context, id K) error
}

var (
	_ Querier[string, any] = (*Service[string, any])(nil)
	_ Querier[string, any] = (*LocalTier[string, any])(nil)
)

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger     *zap.Logger
	pool       *RebuildPool
	clock      func() time.Time
	codec      Codec
	serializer KeySerializer
	entity     string
	strategy   Strategy
	warmOnMiss *bool
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRebuildPool shares an existing pool. The Service will not close it.
func WithRebuildPool(pool *RebuildPool) Option {
	return func(o *serviceOptions) {
		o.pool = pool
	}
}

// WithClock overrides the clock used for logical expiry.
func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithCodec overrides the codec named in Config.Codec.
func WithCodec(codec Codec) Option {
	return func(o *serviceOptions) {
		o.codec = codec
	}
}

// WithKeySerializer overrides the key serializer.
func WithKeySerializer(serializer KeySerializer) Option {
	return func(o *serviceOptions) {
		o.serializer = serializer
	}
}

// WithEntity overrides Config.Entity, useful when one Config serves several services.
func WithEntity(entity string) Option {
	return func(o *serviceOptions) {
		o.entity = entity
	}
}

// WithStrategy overrides Config.Strategy for one service.
func WithStrategy(strategy Strategy) Option {
	return func(o *serviceOptions) {
		o.strategy = strategy
	}
}

// WithWarmOnMiss overrides Config.WarmOnMiss for one service.
func WithWarmOnMiss(enabled bool) Option {
	return func(o *serviceOptions) {
		o.warmOnMiss = &enabled
	}
}

// Service is a read-through cache for one entity type over a shared Store.
// It is safe for concurrent use.
type Service[K comparable, T any] struct {
	cfg      Config
	store    Store
	locker   *Locker
	loader   Loader[K, T]
	codec    Codec
	keys     keyBuilder
	pool     *RebuildPool
	ownsPool bool
	logger   *zap.Logger
	now      func() time.Time
	metrics  *Metrics
}

// NewService validates cfg and builds a Service. When no pool is shared via
// WithRebuildPool, the Service starts its own and stops it on Close.
func NewService[K comparable, T any](cfg Config, store Store, loader Loader[K, T], opts ...Option) (*Service[K, T], error) {
	if store == nil {
		return nil, goerrors.New("cache store is required", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig)
	}
	if loader == nil {
		return nil, goerrors.New("loader is required", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig)
	}

	options := serviceOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.entity != "" {
		cfg.Entity = options.entity
	}
	if options.strategy != "" {
		cfg.Strategy = options.strategy
	}
	if options.warmOnMiss != nil {
		cfg.WarmOnMiss = *options.warmOnMiss
	}
	if cfg.Entity == "" {
		cfg.Entity = entityNameFor[T]()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec := options.codec
	if codec == nil {
		var err error
		if codec, err = CodecByName(cfg.Codec); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid codec").
				WithTextCode(TextCodeInvalidConfig)
		}
	}

	logger := options.logger.Named("cache").With(
		zap.String("entity", cfg.Entity),
		zap.String("strategy", string(cfg.Strategy)),
	)

	s := &Service[K, T]{
		cfg:     cfg,
		store:   store,
		locker:  NewLocker(store),
		loader:  loader,
		codec:   codec,
		keys:    newKeyBuilder(cfg, options.serializer),
		pool:    options.pool,
		logger:  logger,
		now:     options.clock,
		metrics: GetMetrics(),
	}

	if s.pool == nil {
		pool, err := NewRebuildPool(cfg.PoolConfig(), options.logger)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.ownsPool = true
	}

	return s, nil
}

// Config returns the effective configuration.
func (s *Service[K, T]) Config() Config {
	return s.cfg
}

// Pool returns the rebuild pool used for background rebuilds.
func (s *Service[K, T]) Pool() *RebuildPool {
	return s.pool
}

// CacheKey returns the store key holding the entry for id.
func (s *Service[K, T]) CacheKey(id K) string {
	return s.keys.cache(id)
}

// LockKey returns the store key of the rebuild lock for id.
func (s *Service[K, T]) LockKey(id K) string {
	return s.keys.lock(id)
}

// Query reads id with the configured strategy.
func (s *Service[K, T]) Query(ctx context.Context, id K) (T, error) {
	switch s.cfg.Strategy {
	case StrategyPassThrough:
		return s.QueryPassThrough(ctx, id)
	case StrategyMutex:
		return s.QueryWithMutex(ctx, id)
	default:
		return s.QueryWithLogicalExpire(ctx, id)
	}
}

// Warm loads id from the primary store and writes a logical expiry record
// expiring LogicalExpiry from now. Absent records are not written.
func (s *Service[K, T]) Warm(ctx context.Context, id K) (T, error) {
	var zero T

	start := s.now()
	rec, err := s.load(ctx, id)
	if err != nil {
		return zero, err
	}

	if err := s.writeLogical(ctx, s.keys.cache(id), rec, start.Add(s.cfg.LogicalExpiry)); err != nil {
		return zero, err
	}
	return rec, nil
}

// WarmMany warms ids concurrently, at most RebuildPoolSize at a time. Ids
// missing from the primary store are skipped; the first other error is
// returned.
func (s *Service[K, T]) WarmMany(ctx context.Context, ids ...K) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RebuildPoolSize)

	for _, id := range ids {
		g.Go(func() error {
			_, err := s.Warm(gctx, id)
			if IsNotFound(err) {
				loggerFor(ctx, s.logger).Debug("skipping warm of absent record", zap.Any("id", id))
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// Invalidate removes the cached entry for id. Invalidating an absent entry
// is not an error.
func (s *Service[K, T]) Invalidate(ctx context.Context, id K) error {
	key := s.keys.cache(id)
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	loggerFor(ctx, s.logger).Debug("cache entry invalidated", zap.String("key", key))
	return nil
}

// UpdateAndInvalidate runs write against the primary store and then drops
// the cached entry so the next read observes the update.
func (s *Service[K, T]) UpdateAndInvalidate(ctx context.Context, id K, write func(ctx context.Context) error) error {
	var zero K
	if id == zero {
		return ErrMissingID
	}

	if err := write(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "primary store update failed").
			WithTextCode(TextCodePrimaryStore).
			WithMetadata(map[string]any{"entity": s.cfg.Entity})
	}

	return s.Invalidate(ctx, id)
}

// Close stops the rebuild pool if the Service owns it.
func (s *Service[K, T]) Close(ctx context.Context) error {
	if !s.ownsPool {
		return nil
	}
	return s.pool.Close(ctx)
}

// load calls the loader and normalizes its outcome to a record, ErrNotFound
// or a primary store error.
func (s *Service[K, T]) load(ctx context.Context, id K) (T, error) {
	var zero T

	rec, err := s.loader(ctx, id)
	switch {
	case err == nil:
		s.metrics.primaryLoadsTotal.WithLabelValues(s.cfg.Entity, "found").Inc()
		return rec, nil
	case IsNotFound(err):
		s.metrics.primaryLoadsTotal.WithLabelValues(s.cfg.Entity, "not_found").Inc()
		return zero, ErrNotFound
	default:
		s.metrics.primaryLoadsTotal.WithLabelValues(s.cfg.Entity, "error").Inc()
		return zero, primaryStoreError(err, s.cfg.Entity)
	}
}

func (s *Service[K, T]) observe(strategy Strategy, result string) {
	s.metrics.queriesTotal.WithLabelValues(s.cfg.Entity, string(strategy), result).Inc()
}
