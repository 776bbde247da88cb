package cache

import (
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-guarded-cache/internal/cacheinfra"
	"gopkg.in/yaml.v3"
)

// Strategy selects how Service.Query protects the primary store.
type Strategy string

const (
	// StrategyPassThrough caches payloads and null sentinels, no concurrency guard.
	StrategyPassThrough Strategy = "pass_through"
	// StrategyMutex lets one caller per key rebuild while the rest wait.
	StrategyMutex Strategy = "mutex"
	// StrategyLogicalExpire serves stale payloads while one background task rebuilds.
	StrategyLogicalExpire Strategy = "logical_expire"
)

var keySegmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Config exposes the cache configuration for consumers of the cache package.
type Config struct {
	// Entity namespaces keys, cache:<entity>:<id>. Derived from the record
	// type name when empty.
	Entity   string   `yaml:"entity"`
	Strategy Strategy `yaml:"strategy"`

	// FreshTTL is the store TTL for payloads written by pass-through and mutex.
	FreshTTL time.Duration `yaml:"freshTTL"`
	// NullTTL is the store TTL for null sentinels. Must be below FreshTTL.
	NullTTL time.Duration `yaml:"nullTTL"`
	// LockTTL is the self-expiry of a rebuild lock. Keep it above the slowest rebuild.
	LockTTL time.Duration `yaml:"lockTTL"`
	// LogicalExpiry is added to the rebuild start time to compute expireAt.
	LogicalExpiry time.Duration `yaml:"logicalExpiry"`
	// WarmOnMiss makes the logical strategy load absent keys inline instead
	// of returning ErrNotFound. Absent records then get a null sentinel.
	WarmOnMiss bool `yaml:"warmOnMiss"`

	RebuildPoolSize    int         `yaml:"rebuildPoolSize"`
	RebuildQueuePolicy QueuePolicy `yaml:"rebuildQueuePolicy"`
	RebuildQueueSize   int         `yaml:"rebuildQueueSize"`

	LockRetryInterval    time.Duration `yaml:"lockRetryInterval"`
	LockRetryMaxInterval time.Duration `yaml:"lockRetryMaxInterval"`
	LockMaxRetries       int           `yaml:"lockMaxRetries"`
	LockWaitTimeout      time.Duration `yaml:"lockWaitTimeout"`

	CachePrefix string `yaml:"cachePrefix"`
	LockPrefix  string `yaml:"lockPrefix"`
	Codec       string `yaml:"codec"`

	Redis     RedisConfig      `yaml:"redis"`
	LocalTier *LocalTierConfig `yaml:"localTier"`
}

// RedisConfig mirrors the connection settings of the Redis store.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"poolSize"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	KeyPrefix    string        `yaml:"keyPrefix"`
}

// LocalTierConfig mirrors the options of the in-process near cache.
type LocalTierConfig struct {
	Capacity             int           `yaml:"capacity"`
	NumShards            int           `yaml:"numShards"`
	TTL                  time.Duration `yaml:"ttl"`
	EvictionPercentage   int           `yaml:"evictionPercentage"`
	MissingRecordStorage bool          `yaml:"missingRecordStorage"`
	EvictionInterval     time.Duration `yaml:"evictionInterval"`
}

// DefaultConfig returns a Config populated with the production defaults.
// Entity is left empty.
func DefaultConfig() Config {
	return Config{
		Strategy:             StrategyLogicalExpire,
		FreshTTL:             30 * time.Minute,
		NullTTL:              2 * time.Minute,
		LockTTL:              10 * time.Second,
		LogicalExpiry:        20 * time.Second,
		RebuildPoolSize:      10,
		RebuildQueuePolicy:   QueueUnbounded,
		RebuildQueueSize:     1024,
		LockRetryInterval:    50 * time.Millisecond,
		LockRetryMaxInterval: 500 * time.Millisecond,
		LockMaxRetries:       100,
		LockWaitTimeout:      5 * time.Second,
		CachePrefix:          "cache",
		LockPrefix:           "lock",
		Codec:                CodecJSON,
	}
}

// DefaultLocalTierConfig returns the near cache defaults.
func DefaultLocalTierConfig() LocalTierConfig {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid for a single
// Service, which requires Entity.
func (c Config) Validate() error {
	return c.validate(true)
}

// ValidateShared checks a configuration shared by several services. Entity
// may be empty there, since each Service derives its own.
func (c Config) ValidateShared() error {
	return c.validate(false)
}

func (c Config) validate(requireEntity bool) error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Entity,
			validation.When(requireEntity, validation.Required),
			validation.Match(keySegmentPattern)),
		validation.Field(&c.Strategy, validation.Required,
			validation.In(StrategyPassThrough, StrategyMutex, StrategyLogicalExpire)),
		validation.Field(&c.FreshTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.NullTTL, validation.Required, validation.Min(time.Millisecond),
			validation.Max(c.FreshTTL).Exclusive().Error("must be less than freshTTL")),
		validation.Field(&c.LockTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.LogicalExpiry, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RebuildPoolSize, validation.Required, validation.Min(1)),
		validation.Field(&c.RebuildQueuePolicy, validation.Required,
			validation.In(QueueUnbounded, QueueReject, QueueBlock)),
		validation.Field(&c.RebuildQueueSize,
			validation.When(c.RebuildQueuePolicy != QueueUnbounded, validation.Required, validation.Min(1))),
		validation.Field(&c.LockRetryInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.LockRetryMaxInterval, validation.Required,
			validation.Min(c.LockRetryInterval).Error("must not be less than lockRetryInterval")),
		validation.Field(&c.LockMaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.LockWaitTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.CachePrefix, validation.Required, validation.Match(keySegmentPattern)),
		validation.Field(&c.LockPrefix, validation.Required, validation.Match(keySegmentPattern),
			validation.NotIn(c.CachePrefix).Error("must differ from cachePrefix")),
		validation.Field(&c.Codec, validation.In(CodecJSON, CodecMsgpack)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache configuration").
			WithTextCode(TextCodeInvalidConfig)
	}

	if c.Redis.URL != "" {
		if err := c.Redis.toInternal().Validate(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid redis configuration").
				WithTextCode(TextCodeInvalidConfig)
		}
	}

	if c.LocalTier != nil {
		if err := c.LocalTier.toInternal().Validate(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid local tier configuration").
				WithTextCode(TextCodeInvalidConfig)
		}
	}

	return nil
}

// PoolConfig returns the rebuild pool settings.
func (c Config) PoolConfig() PoolConfig {
	return PoolConfig{
		Size:      c.RebuildPoolSize,
		Policy:    c.RebuildQueuePolicy,
		QueueSize: c.RebuildQueueSize,
	}
}

// ParseConfig decodes a YAML document over DefaultConfig and validates it
// with ValidateShared, so entity may be omitted. Durations use Go syntax,
// e.g. "30m" or "50ms".
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse cache configuration").
			WithTextCode(TextCodeInvalidConfig)
	}
	if err := cfg.ValidateShared(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read cache configuration").
			WithMetadata(map[string]any{"path": path})
	}
	return ParseConfig(data)
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		URL:          c.URL,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		KeyPrefix:    c.KeyPrefix,
	}
}

func (c LocalTierConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) LocalTierConfig {
	return LocalTierConfig{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
}
