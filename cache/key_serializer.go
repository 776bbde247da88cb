package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// KeySerializer builds a store key from a namespace and key parts.
// Keys must be stable across processes since they are shared through the store.
type KeySerializer interface {
	SerializeKey(namespace string, parts ...any) string
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the serializer used for cache and lock keys.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins namespace and parts with KeySeparator.
func (s defaultKeySerializer) SerializeKey(namespace string, parts ...any) string {
	segments := make([]string, 0, len(parts)+1)
	if namespace != "" {
		segments = append(segments, namespace)
	}
	for _, part := range parts {
		segments = append(segments, s.formatPart(part))
	}
	return strings.Join(segments, KeySeparator)
}

func (s defaultKeySerializer) formatPart(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case []byte:
		return string(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.formatPart(rv.Elem().Interface())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return fmt.Sprint(v)
	case reflect.Slice, reflect.Array:
		items := make([]string, rv.Len())
		for i := range items {
			items[i] = s.formatPart(rv.Index(i).Interface())
		}
		return strings.Join(items, ",")
	}

	// Composite ids fall back to JSON, which sorts map keys.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	return string(data)
}

// keyBuilder derives the cache and lock keys for one entity.
type keyBuilder struct {
	serializer  KeySerializer
	cachePrefix string
	lockPrefix  string
	entity      string
}

func newKeyBuilder(cfg Config, serializer KeySerializer) keyBuilder {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return keyBuilder{
		serializer:  serializer,
		cachePrefix: cfg.CachePrefix,
		lockPrefix:  cfg.LockPrefix,
		entity:      cfg.Entity,
	}
}

// cache returns <cachePrefix>:<entity>:<id>.
func (k keyBuilder) cache(id any) string {
	return k.serializer.SerializeKey(k.cachePrefix, k.entity, id)
}

// lock returns <lockPrefix>:<entity>:<id>.
func (k keyBuilder) lock(id any) string {
	return k.serializer.SerializeKey(k.lockPrefix, k.entity, id)
}
