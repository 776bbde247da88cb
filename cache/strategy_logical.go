package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// QueryWithLogicalExpire serves id from a pre-warmed logical expiry record and
// never waits on the primary store. A stale record is returned as is while a
// single background task, guarded by the per-key lock, rebuilds it.
//
// An absent key yields ErrNotFound unless Config.WarmOnMiss is set. An
// undecodable entry yields ErrNotFound and schedules a rebuild. A record the
// rebuild no longer finds is replaced by a null sentinel.
func (s *Service[K, T]) QueryWithLogicalExpire(ctx context.Context, id K) (T, error) {
	var zero T
	key := s.keys.cache(id)

	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.observe(StrategyLogicalExpire, "error")
		return zero, err
	}
	if !ok {
		s.observe(StrategyLogicalExpire, "miss")
		if s.cfg.WarmOnMiss {
			return s.warmOnMiss(ctx, id, key)
		}
		return zero, ErrNotFound
	}
	if isNullSentinel(raw) {
		s.observe(StrategyLogicalExpire, "null")
		return zero, ErrNotFound
	}

	rec, err := decodeLogical[T](s.codec, raw)
	if err != nil {
		s.observe(StrategyLogicalExpire, "corrupt")
		s.metrics.decodeErrorsTotal.WithLabelValues(s.cfg.Entity).Inc()
		loggerFor(ctx, s.logger).Warn("undecodable logical expiry record, scheduling rebuild",
			zap.String("key", key),
			zap.Error(serializationError(err, key)))
		s.scheduleRebuild(ctx, id, key)
		return zero, ErrNotFound
	}

	if !rec.Expired(s.now()) {
		s.observe(StrategyLogicalExpire, "hit")
		return rec.Data, nil
	}

	s.observe(StrategyLogicalExpire, "stale")
	s.scheduleRebuild(ctx, id, key)
	return rec.Data, nil
}

// scheduleRebuild submits a rebuild for id if this caller wins the lock.
// Failures are logged; the caller keeps serving whatever it already has.
func (s *Service[K, T]) scheduleRebuild(ctx context.Context, id K, key string) {
	log := loggerFor(ctx, s.logger).With(zap.String("key", key))
	lockKey := s.keys.lock(id)

	lease, acquired, err := s.locker.TryAcquire(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		log.Warn("could not attempt rebuild lock", zap.Error(err))
		return
	}
	if !acquired {
		s.metrics.lockAttemptsTotal.WithLabelValues(s.cfg.Entity, "contended").Inc()
		log.Debug("rebuild already in flight", zap.String("lock", lockKey))
		return
	}
	s.metrics.lockAttemptsTotal.WithLabelValues(s.cfg.Entity, "acquired").Inc()

	requestID, _ := RequestIDFromContext(ctx)
	task := func(taskCtx context.Context) error {
		taskCtx = WithRequestID(taskCtx, requestID)
		defer s.release(taskCtx, lease)
		return s.rebuildLogical(taskCtx, id, key)
	}

	if err := s.pool.Submit(ctx, task); err != nil {
		s.release(ctx, lease)
		s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "rejected").Inc()
		log.Warn("rebuild submission failed, serving current entry", zap.Error(err))
		return
	}

	s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "submitted").Inc()
}

// rebuildLogical reloads id and rewrites its logical expiry record with
// expireAt = start + LogicalExpiry. An absent record is replaced by a null
// sentinel so later reads return ErrNotFound without a primary load.
func (s *Service[K, T]) rebuildLogical(ctx context.Context, id K, key string) error {
	log := loggerFor(ctx, s.logger).With(zap.String("key", key))
	start := s.now()

	rec, err := s.load(ctx, id)
	if IsNotFound(err) {
		if werr := s.writeNull(ctx, key); werr != nil {
			s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "failed").Inc()
			return werr
		}
		s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "absent").Inc()
		log.Debug("rebuild found no record in primary store, null sentinel written")
		return nil
	}
	if err != nil {
		s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "failed").Inc()
		return err
	}

	if err := s.writeLogical(ctx, key, rec, start.Add(s.cfg.LogicalExpiry)); err != nil {
		s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "failed").Inc()
		return err
	}

	s.metrics.rebuildsTotal.WithLabelValues(s.cfg.Entity, "completed").Inc()
	log.Debug("logical expiry record rebuilt", zap.Duration("took", s.now().Sub(start)))
	return nil
}

// warmOnMiss loads an absent key inline. Absent records get a null sentinel so
// repeated lookups stay off the primary store.
func (s *Service[K, T]) warmOnMiss(ctx context.Context, id K, key string) (T, error) {
	var zero T

	start := s.now()
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

	if err := s.writeLogical(ctx, key, rec, start.Add(s.cfg.LogicalExpiry)); err != nil {
		return zero, err
	}
	return rec, nil
}

func (s *Service[K, T]) writeLogical(ctx context.Context, key string, rec T, expireAt time.Time) error {
	data, err := encodeLogical(s.codec, LogicalExpiryRecord[T]{Data: rec, ExpireAt: expireAt})
	if err != nil {
		return serializationError(err, key)
	}
	return s.store.Set(ctx, key, data, 0)
}
