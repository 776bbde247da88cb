package cache

import (
	"errors"
	"time"
)

var errEmptyPayload = errors.New("empty payload")

// nullSentinel marks a confirmed absence in the primary store. No codec
// produces an empty payload for a record, so the two never collide.
var nullSentinel = []byte{}

func isNullSentinel(raw []byte) bool {
	return len(raw) == 0
}

// LogicalExpiryRecord wraps a payload with an application-level expiry.
// The store keeps it without a TTL; readers compare ExpireAt with the clock.
type LogicalExpiryRecord[T any] struct {
	Data     T
	ExpireAt time.Time
}

// Expired reports whether the record is stale at now.
func (r LogicalExpiryRecord[T]) Expired(now time.Time) bool {
	return !r.ExpireAt.After(now)
}

// logicalWire is the stored form: {"data": ..., "expireAt": <epoch ms>}.
type logicalWire[T any] struct {
	Data     T     `json:"data"`
	ExpireAt int64 `json:"expireAt"`
}

func encodeLogical[T any](codec Codec, rec LogicalExpiryRecord[T]) ([]byte, error) {
	return codec.Marshal(logicalWire[T]{
		Data:     rec.Data,
		ExpireAt: rec.ExpireAt.UnixMilli(),
	})
}

func decodeLogical[T any](codec Codec, raw []byte) (LogicalExpiryRecord[T], error) {
	if len(raw) == 0 {
		return LogicalExpiryRecord[T]{}, errEmptyPayload
	}

	var wire logicalWire[T]
	if err := codec.Unmarshal(raw, &wire); err != nil {
		return LogicalExpiryRecord[T]{}, err
	}
	if wire.ExpireAt <= 0 {
		return LogicalExpiryRecord[T]{}, errors.New("missing expireAt")
	}

	return LogicalExpiryRecord[T]{
		Data:     wire.Data,
		ExpireAt: time.UnixMilli(wire.ExpireAt),
	}, nil
}
