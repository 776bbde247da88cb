package cache

import (
	"sync"

	"github.com/goliatone/go-guarded-cache/internal/cacheinfra"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for cache queries, primary loads,
// locks and background rebuilds.
type Metrics struct {
	queriesTotal        *prometheus.CounterVec
	primaryLoadsTotal   *prometheus.CounterVec
	sentinelWritesTotal *prometheus.CounterVec
	lockAttemptsTotal   *prometheus.CounterVec
	decodeErrorsTotal   *prometheus.CounterVec
	rebuildsTotal       *prometheus.CounterVec
	poolTasksTotal      *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance. Collectors are
// registered with the default Prometheus registry on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers every cache collector, including the store
// collectors, with a custom registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.queriesTotal,
		m.primaryLoadsTotal,
		m.sentinelWritesTotal,
		m.lockAttemptsTotal,
		m.decodeErrorsTotal,
		m.rebuildsTotal,
		m.poolTasksTotal,
	)
	cacheinfra.GetStoreMetrics().MustRegister(registry)
}

func newMetrics() *Metrics {
	const namespace = "guarded_cache"

	return &Metrics{
		queriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Cache queries by strategy and outcome",
			},
			[]string{"entity", "strategy", "result"},
		),
		primaryLoadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "primary_loads_total",
				Help:      "Primary store lookups by outcome",
			},
			[]string{"entity", "result"},
		),
		sentinelWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "null_sentinel_writes_total",
				Help:      "Null sentinels written for absent records",
			},
			[]string{"entity"},
		),
		lockAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_attempts_total",
				Help:      "Rebuild lock acquisition attempts by outcome",
			},
			[]string{"entity", "result"},
		),
		decodeErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Cache entries that could not be decoded",
			},
			[]string{"entity"},
		),
		rebuildsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebuilds_total",
				Help:      "Logical expiry rebuilds by outcome",
			},
			[]string{"entity", "result"},
		),
		poolTasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rebuild_pool",
				Name:      "tasks_total",
				Help:      "Rebuild pool tasks by outcome",
			},
			[]string{"result"},
		),
	}
}
