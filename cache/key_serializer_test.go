package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type compositeID struct {
	Tenant string `json:"tenant"`
	Seq    int    `json:"seq"`
}

func TestDefaultKeySerializer_SerializeKey(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	fixed := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	n := int64(9)

	tests := []struct {
		name      string
		namespace string
		parts     []any
		want      string
	}{
		{name: "namespace only", namespace: "cache", want: "cache"},
		{name: "string id", namespace: "cache", parts: []any{"shop", "abc"}, want: "cache:shop:abc"},
		{name: "int id", namespace: "cache", parts: []any{"shop", 42}, want: "cache:shop:42"},
		{name: "int64 id", namespace: "lock", parts: []any{"shop", int64(1 << 40)}, want: "lock:shop:1099511627776"},
		{name: "uint8 id", namespace: "cache", parts: []any{"shop", uint8(7)}, want: "cache:shop:7"},
		{name: "pointer id", namespace: "cache", parts: []any{"shop", &n}, want: "cache:shop:9"},
		{name: "nil pointer", namespace: "cache", parts: []any{"shop", (*int64)(nil)}, want: "cache:shop:nil"},
		{name: "stringer id", namespace: "cache", parts: []any{"user", fixed}, want: "cache:user:6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{name: "slice id", namespace: "cache", parts: []any{"pair", []int{1, 2}}, want: "cache:pair:1,2"},
		{name: "struct id", namespace: "cache", parts: []any{"seq", compositeID{Tenant: "acme", Seq: 3}}, want: `cache:seq:{"tenant":"acme","seq":3}`},
		{name: "empty namespace", parts: []any{7}, want: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serializer.SerializeKey(tt.namespace, tt.parts...))
		})
	}
}

func TestDefaultKeySerializer_Stable(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	id := compositeID{Tenant: "acme", Seq: 1}

	first := serializer.SerializeKey("cache", "seq", id)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, serializer.SerializeKey("cache", "seq", id))
	}
}

func TestKeyBuilder_Prefixes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Entity = "shop"
	cfg.CachePrefix = "c"
	cfg.LockPrefix = "l"

	keys := newKeyBuilder(cfg, nil)

	assert.Equal(t, "c:shop:5", keys.cache(int64(5)))
	assert.Equal(t, "l:shop:5", keys.lock(int64(5)))
}
