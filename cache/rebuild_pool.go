package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gammazero/channelqueue"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

// QueuePolicy decides what Submit does when workers are busy.
type QueuePolicy string

const (
	// QueueUnbounded buffers every task; Submit never waits.
	QueueUnbounded QueuePolicy = "unbounded"
	// QueueReject buffers up to QueueSize tasks and then fails with ErrRebuildQueueFull.
	QueueReject QueuePolicy = "reject"
	// QueueBlock buffers up to QueueSize tasks and then waits for space or ctx.
	QueueBlock QueuePolicy = "block"
)

// Task is a unit of background work. The context is cancelled only when the
// pool is closed with an expired deadline.
type Task func(ctx context.Context) error

// PoolConfig sizes a RebuildPool.
type PoolConfig struct {
	Size      int
	Policy    QueuePolicy
	QueueSize int
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
}

// RebuildPool runs background tasks on a fixed set of workers.
type RebuildPool struct {
	cfg    PoolConfig
	logger *zap.Logger

	in  chan<- Task
	out <-chan Task

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// NewRebuildPool starts cfg.Size workers.
func NewRebuildPool(cfg PoolConfig, logger *zap.Logger) (*RebuildPool, error) {
	if cfg.Size <= 0 {
		return nil, goerrors.New("rebuild pool size must be greater than 0", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig)
	}
	if cfg.Policy == "" {
		cfg.Policy = QueueUnbounded
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &RebuildPool{
		cfg:    cfg,
		logger: logger.Named("rebuild_pool"),
	}

	switch cfg.Policy {
	case QueueUnbounded:
		cq := channelqueue.New[Task](-1)
		p.in, p.out = cq.In(), cq.Out()
	case QueueReject, QueueBlock:
		if cfg.QueueSize <= 0 {
			return nil, goerrors.New("rebuild queue size must be greater than 0", goerrors.CategoryValidation).
				WithTextCode(TextCodeInvalidConfig)
		}
		ch := make(chan Task, cfg.QueueSize)
		p.in, p.out = ch, ch
	default:
		return nil, goerrors.New(fmt.Sprintf("unknown rebuild queue policy %q", cfg.Policy), goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	for i := 0; i < cfg.Size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.logger.Debug("rebuild pool started",
		zap.Int("workers", cfg.Size),
		zap.String("policy", string(cfg.Policy)))

	return p, nil
}

// Submit enqueues task according to the queue policy.
func (p *RebuildPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.reject("closed")
		return ErrPoolClosed
	}

	switch p.cfg.Policy {
	case QueueReject:
		select {
		case p.in <- task:
		default:
			p.reject("queue_full")
			return ErrRebuildQueueFull
		}
	case QueueBlock:
		select {
		case p.in <- task:
		case <-ctx.Done():
			p.reject("cancelled")
			return ctx.Err()
		}
	default:
		p.in <- task
	}

	p.submitted.Add(1)
	GetMetrics().poolTasksTotal.WithLabelValues("submitted").Inc()
	return nil
}

// Close stops accepting tasks and waits for queued tasks to finish. When ctx
// expires first, running tasks see their context cancelled and Close returns
// the context error.
func (p *RebuildPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.in)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Debug("rebuild pool drained", zap.Uint64("completed", p.completed.Load()))
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("rebuild pool close interrupted", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool counters.
func (p *RebuildPool) Stats() PoolStats {
	return PoolStats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *RebuildPool) worker() {
	defer p.wg.Done()
	for task := range p.out {
		p.run(task)
	}
}

func (p *RebuildPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			GetMetrics().poolTasksTotal.WithLabelValues("panicked").Inc()
			p.logger.Error("rebuild task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := task(p.ctx); err != nil {
		p.failed.Add(1)
		GetMetrics().poolTasksTotal.WithLabelValues("failed").Inc()
		p.logger.Error("rebuild task failed", zap.Error(err))
		return
	}

	p.completed.Add(1)
	GetMetrics().poolTasksTotal.WithLabelValues("completed").Inc()
}

func (p *RebuildPool) reject(reason string) {
	p.rejected.Add(1)
	GetMetrics().poolTasksTotal.WithLabelValues("rejected_" + reason).Inc()
}
