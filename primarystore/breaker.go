package primarystore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-guarded-cache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker placed in front of a loader.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts. Zero never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns a breaker that opens after five straight
// failures and probes again after 30 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

var (
	breakerTransitions     *prometheus.CounterVec
	breakerTransitionsOnce sync.Once
)

func transitionsCounter() *prometheus.CounterVec {
	breakerTransitionsOnce.Do(func() {
		breakerTransitions = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guarded_cache",
				Subsystem: "primary_store",
				Name:      "breaker_transitions_total",
				Help:      "Primary store circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		)
	})
	return breakerTransitions
}

// MustRegister registers the breaker collectors with a custom registry.
func MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(transitionsCounter())
}

// Breaker guards a loader with a circuit breaker. NotFound results count as
// successes so absent ids never trip it, and context errors are ignored.
type Breaker[K comparable, T any] struct {
	cb     *gobreaker.CircuitBreaker
	next   cache.Loader[K, T]
	logger *zap.Logger
}

// NewBreaker wraps loader. A nil logger disables logging.
func NewBreaker[K comparable, T any](loader cache.Loader[K, T], cfg BreakerConfig, logger *zap.Logger) *Breaker[K, T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}

	b := &Breaker[K, T]{next: loader, logger: logger}
	threshold := cfg.ConsecutiveFailures

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("primary store breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			transitionsCounter().WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				cache.IsNotFound(err) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	})

	return b
}

// Load runs the wrapped loader through the breaker. While open it fails fast
// with an error for which IsCircuitOpen is true.
func (b *Breaker[K, T]) Load(ctx context.Context, id K) (T, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next(ctx, id)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// State returns the current breaker state.
func (b *Breaker[K, T]) State() gobreaker.State {
	return b.cb.State()
}

// WithCircuitBreaker is a shorthand for NewBreaker(...).Load.
func WithCircuitBreaker[K comparable, T any](loader cache.Loader[K, T], cfg BreakerConfig, logger *zap.Logger) cache.Loader[K, T] {
	return NewBreaker(loader, cfg, logger).Load
}

// IsCircuitOpen reports whether err was produced by an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
