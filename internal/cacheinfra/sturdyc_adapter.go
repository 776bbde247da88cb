package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/viccon/sturdyc"
)

// ErrRecordMissing is returned by fetch functions to signal that the source
// of truth has no record for the key. Tier.GetOrFetch returns it for both fresh
// and remembered misses.
var ErrRecordMissing = errors.New("cacheinfra: record missing")

// Config holds the configuration for the in-process sturdyc tier.
type Config struct {
	// Capacity defines the maximum number of entries that the tier can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of shards for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// TTL is the local time-to-live for entries. Keep it well below the
	// shared store TTLs so the tier never masks an invalidation for long.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the tier reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// MissingRecordStorage remembers keys whose fetch reported ErrRecordMissing.
	MissingRecordStorage bool

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config suited for a short-lived near cache.
func DefaultConfig() Config {
	return Config{
		Capacity:             10000,
		NumShards:            64,
		TTL:                  5 * time.Second,
		EvictionPercentage:   10,
		MissingRecordStorage: true,
	}
}

// ToSturdycOptions converts the Config to sturdyc options. Capacity,
// NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Tier is a typed in-process cache with request coalescing in front of a
// slower fetch path.
type Tier[T any] struct {
	client *sturdyc.Client[T]
}

// NewTier validates cfg and builds a sturdyc client for values of type T.
func NewTier[T any](cfg Config) (*Tier[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[T](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &Tier[T]{client: client}, nil
}

// GetOrFetch returns the locally cached value for key or calls fetch.
// Concurrent callers for the same key share one fetch.
func (t *Tier[T]) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	value, err := t.client.GetOrFetch(ctx, key, func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if errors.Is(err, ErrRecordMissing) {
			var zero T
			return zero, sturdyc.ErrNotFound
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, sturdyc.ErrNotFound) || errors.Is(err, sturdyc.ErrMissingRecord) {
			var zero T
			return zero, ErrRecordMissing
		}
		var zero T
		return zero, err
	}
	return value, nil
}

// Delete drops key from the tier.
func (t *Tier[T]) Delete(key string) {
	t.client.Delete(key)
}

// Keys returns the keys currently held by the tier.
func (t *Tier[T]) Keys() []string {
	return t.client.ScanKeys()
}
