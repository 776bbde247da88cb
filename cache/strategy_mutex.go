package cache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// QueryWithMutex serves id like QueryPassThrough, but on a miss only the
// caller holding the per-key lock loads from the primary store. Other callers
// back off and re-read the cache until the entry appears, the retry budget
// runs out (ErrLockWaitTimeout) or ctx is done.
func (s *Service[K, T]) QueryWithMutex(ctx context.Context, id K) (T, error) {
	var zero T
	key := s.keys.cache(id)
	lockKey := s.keys.lock(id)
	wait := s.lockWaitBackOff()

	for attempt := 0; ; attempt++ {
		rec, state, err := s.readFresh(ctx, key)
		if err != nil {
			s.observe(StrategyMutex, "error")
			return zero, err
		}
		switch state {
		case entryHit:
			s.observe(StrategyMutex, "hit")
			return rec, nil
		case entryNull:
			s.observe(StrategyMutex, "null")
			return zero, ErrNotFound
		}

		lease, acquired, err := s.locker.TryAcquire(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			s.observe(StrategyMutex, "error")
			return zero, err
		}
		if acquired {
			s.metrics.lockAttemptsTotal.WithLabelValues(s.cfg.Entity, "acquired").Inc()
			s.observe(StrategyMutex, "miss")
			return s.rebuildUnderLease(ctx, id, key, lease)
		}

		s.metrics.lockAttemptsTotal.WithLabelValues(s.cfg.Entity, "contended").Inc()

		delay := wait.NextBackOff()
		if delay == backoff.Stop {
			s.observe(StrategyMutex, "lock_timeout")
			loggerFor(ctx, s.logger).Warn("gave up waiting for rebuild lock",
				zap.String("lock", lockKey),
				zap.Int("attempts", attempt+1))
			return zero, ErrLockWaitTimeout
		}

		loggerFor(ctx, s.logger).Debug("rebuild lock busy, backing off",
			zap.String("lock", lockKey),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.observe(StrategyMutex, "cancelled")
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// rebuildUnderLease re-reads the cache and loads from the primary store only
// if the entry is still missing. The lease is released on every exit path,
// panics included.
func (s *Service[K, T]) rebuildUnderLease(ctx context.Context, id K, key string, lease *Lease) (T, error) {
	defer s.release(ctx, lease)

	var zero T
	rec, state, err := s.readFresh(ctx, key)
	if err != nil {
		return zero, err
	}
	switch state {
	case entryHit:
		return rec, nil
	case entryNull:
		return zero, ErrNotFound
	}

	return s.loadAndFill(ctx, id, key)
}

func (s *Service[K, T]) lockWaitBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.LockRetryInterval),
		backoff.WithMaxInterval(s.cfg.LockRetryMaxInterval),
		backoff.WithMaxElapsedTime(s.cfg.LockWaitTimeout),
	)
	return backoff.WithMaxRetries(exp, uint64(s.cfg.LockMaxRetries))
}

func (s *Service[K, T]) release(ctx context.Context, lease *Lease) {
	if err := lease.Release(ctx); err != nil {
		loggerFor(ctx, s.logger).Error("failed to release rebuild lock",
			zap.String("lock", lease.Key()),
			zap.Error(err))
	}
}
