package cacheinfra

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics holds Prometheus collectors for key-value store operations.
type StoreMetrics struct {
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

var (
	storeMetricsInstance *StoreMetrics
	storeMetricsOnce     sync.Once
)

// GetStoreMetrics returns the singleton store metrics instance.
func GetStoreMetrics() *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetricsInstance = newStoreMetrics()
	})
	return storeMetricsInstance
}

// MustRegister registers the store collectors with a custom registry.
func (m *StoreMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.operationDuration, m.errorsTotal)
}

func newStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "guarded_cache",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of key-value store operations",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guarded_cache",
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total number of key-value store errors",
			},
			[]string{"operation"},
		),
	}
}

func observeStoreOp(op string, start time.Time) {
	GetStoreMetrics().operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
