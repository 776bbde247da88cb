package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type entryState int

const (
	entryMiss entryState = iota
	entryHit
	entryNull
)

// QueryPassThrough serves id from the cache, falling back to the primary
// store on a miss. Absent records are cached as null sentinels for NullTTL.
// Concurrent misses on the same key all reach the primary store.
func (s *Service[K, T]) QueryPassThrough(ctx context.Context, id K) (T, error) {
	var zero T
	key := s.keys.cache(id)

	rec, state, err := s.readFresh(ctx, key)
	if err != nil {
		s.observe(StrategyPassThrough, "error")
		return zero, err
	}

	switch state {
	case entryHit:
		s.observe(StrategyPassThrough, "hit")
		return rec, nil
	case entryNull:
		s.observe(StrategyPassThrough, "null")
		return zero, ErrNotFound
	}

	s.observe(StrategyPassThrough, "miss")
	return s.loadAndFill(ctx, id, key)
}

// readFresh reads a plain payload. Undecodable entries count as misses.
func (s *Service[K, T]) readFresh(ctx context.Context, key string) (T, entryState, error) {
	var zero T

	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return zero, entryMiss, err
	}
	if !ok {
		return zero, entryMiss, nil
	}
	if isNullSentinel(raw) {
		return zero, entryNull, nil
	}

	var rec T
	if err := s.codec.Unmarshal(raw, &rec); err != nil {
		s.metrics.decodeErrorsTotal.WithLabelValues(s.cfg.Entity).Inc()
		loggerFor(ctx, s.logger).Warn("discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(serializationError(err, key)))
		return zero, entryMiss, nil
	}

	return rec, entryHit, nil
}

// loadAndFill loads id and writes either the payload with FreshTTL or a null
// sentinel with NullTTL.
func (s *Service[K, T]) loadAndFill(ctx context.Context, id K, key string) (T, error) {
	var zero T

	rec, err := s.load(ctx, id)
	if IsNotFound(err) {
		if werr := s.writeNull(ctx, key); werr != nil {
			return zero, werr
		}
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, err
	}

	if err := s.writePayload(ctx, key, rec, s.cfg.FreshTTL); err != nil {
		return zero, err
	}
	return rec, nil
}

func (s *Service[K, T]) writePayload(ctx context.Context, key string, rec T, ttl time.Duration) error {
	data, err := s.codec.Marshal(rec)
	if err != nil {
		return serializationError(err, key)
	}
	return s.store.Set(ctx, key, data, ttl)
}

func (s *Service[K, T]) writeNull(ctx context.Context, key string) error {
	if err := s.store.Set(ctx, key, nullSentinel, s.cfg.NullTTL); err != nil {
		return err
	}
	s.metrics.sentinelWritesTotal.WithLabelValues(s.cfg.Entity).Inc()
	loggerFor(ctx, s.logger).Debug("cached null sentinel",
		zap.String("key", key),
		zap.Duration("ttl", s.cfg.NullTTL))
	return nil
}
