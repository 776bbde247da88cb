package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorClassifiers(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{name: "not found sentinel", err: ErrNotFound, check: IsNotFound, want: true},
		{name: "wrapped not found", err: fmt.Errorf("query: %w", ErrNotFound), check: IsNotFound, want: true},
		{name: "foreign not found category", err: goerrors.New("missing", goerrors.CategoryNotFound), check: IsNotFound, want: true},
		{name: "nil is not not found", err: nil, check: IsNotFound, want: false},
		{name: "primary store", err: primaryStoreError(cause, "shop"), check: IsPrimaryStoreError, want: true},
		{name: "primary store is not backing store", err: primaryStoreError(cause, "shop"), check: IsBackingStoreError, want: false},
		{name: "serialization", err: serializationError(cause, "cache:shop:1"), check: IsSerializationError, want: true},
		{name: "lock wait timeout", err: ErrLockWaitTimeout, check: IsLockWaitTimeout, want: true},
		{
			name:  "wrapped lock wait timeout",
			err:   goerrors.Wrap(ErrLockWaitTimeout, goerrors.CategoryOperation, "query shop"),
			check: IsLockWaitTimeout,
			want:  true,
		},
		{name: "queue full", err: ErrRebuildQueueFull, check: IsRebuildRejected, want: true},
		{name: "pool closed", err: ErrPoolClosed, check: IsRebuildRejected, want: true},
		{name: "plain error", err: cause, check: IsRebuildRejected, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestPrimaryStoreError_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := primaryStoreError(cause, "shop")

	assert.ErrorIs(t, err, cause)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryExternal))
}

func TestEntityNameFor(t *testing.T) {
	type ShopRecord struct{}
	type HTTPEndpoint struct{}

	assert.Equal(t, "shop_record", entityNameFor[ShopRecord]())
	assert.Equal(t, "shop_record", entityNameFor[*ShopRecord]())
	assert.Equal(t, "http_endpoint", entityNameFor[HTTPEndpoint]())
	assert.Equal(t, "", entityNameFor[map[string]any]())
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"shop":            "shop",
		"Shop":            "shop",
		"ShopRecord":      "shop_record",
		"HTTPServer":      "http_server",
		"userID":          "user_id",
		"Shop2":           "shop_2",
		"Page[main.Shop]": "page_main_shop",
		"already_snake":   "already_snake",
	}

	for in, want := range tests {
		assert.Equal(t, want, toSnake(in), in)
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	id, ok := RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	_, ok = RequestIDFromContext(WithRequestID(context.Background(), ""))
	assert.False(t, ok)

	core, logs := observer.New(zap.DebugLevel)
	loggerFor(ctx, zap.New(core)).Info("served")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	}
}
