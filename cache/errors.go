package cache

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-guarded-cache/internal/cacheinfra"
)

// Text codes attached to errors produced by this package.
const (
	TextCodeNotFound         = "RECORD_NOT_FOUND"
	TextCodeBackingStore     = cacheinfra.TextCodeBackingStore
	TextCodePrimaryStore     = "PRIMARY_STORE_ERROR"
	TextCodeSerialization    = "SERIALIZATION_ERROR"
	TextCodeLockWaitTimeout  = "LOCK_WAIT_TIMEOUT"
	TextCodeRebuildQueueFull = "REBUILD_QUEUE_FULL"
	TextCodePoolClosed       = "REBUILD_POOL_CLOSED"
	TextCodeMissingID        = "MISSING_ID"
	TextCodeInvalidConfig    = "INVALID_CONFIG"
)

// Sentinel errors. Treat them as read-only values, never call the With*
// mutators on them directly.
var (
	// ErrNotFound reports that the primary store has no record for the id,
	// either directly or through a cached null sentinel.
	ErrNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeNotFound)

	// ErrLockWaitTimeout is returned by the mutex strategy when the rebuild
	// lock could not be acquired within the configured retry budget.
	ErrLockWaitTimeout = goerrors.New("timed out waiting for rebuild lock", goerrors.CategoryOperation).
				WithTextCode(TextCodeLockWaitTimeout)

	// ErrRebuildQueueFull is returned by RebuildPool.Submit under the reject policy.
	ErrRebuildQueueFull = goerrors.New("rebuild queue is full", goerrors.CategoryRateLimit).
				WithTextCode(TextCodeRebuildQueueFull)

	// ErrPoolClosed is returned by RebuildPool.Submit after Close.
	ErrPoolClosed = goerrors.New("rebuild pool is closed", goerrors.CategoryOperation).
			WithTextCode(TextCodePoolClosed)

	// ErrMissingID is returned when a write is attempted without an id.
	ErrMissingID = goerrors.New("id must not be empty", goerrors.CategoryValidation).
			WithTextCode(TextCodeMissingID)
)

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || goerrors.IsNotFound(err)
}

// IsBackingStoreError reports whether err came from the key-value store.
func IsBackingStoreError(err error) bool {
	return hasTextCode(err, TextCodeBackingStore)
}

// IsPrimaryStoreError reports whether err came from the primary store loader.
func IsPrimaryStoreError(err error) bool {
	return hasTextCode(err, TextCodePrimaryStore)
}

// IsSerializationError reports whether err came from encoding or decoding a payload.
func IsSerializationError(err error) bool {
	return hasTextCode(err, TextCodeSerialization)
}

// IsLockWaitTimeout reports whether err is ErrLockWaitTimeout.
func IsLockWaitTimeout(err error) bool {
	return errors.Is(err, ErrLockWaitTimeout) || hasTextCode(err, TextCodeLockWaitTimeout)
}

// IsRebuildRejected reports whether a rebuild submission was refused,
// either because the queue is full or the pool is closed.
func IsRebuildRejected(err error) bool {
	return errors.Is(err, ErrRebuildQueueFull) || errors.Is(err, ErrPoolClosed) ||
		hasTextCode(err, TextCodeRebuildQueueFull) || hasTextCode(err, TextCodePoolClosed)
}

// hasTextCode walks the chain of *goerrors.Error values looking for code.
// goerrors.Wrap clones wrapped *Error values, so identity checks alone miss them.
func hasTextCode(err error, code string) bool {
	for err != nil {
		var e *goerrors.Error
		if !errors.As(err, &e) {
			return false
		}
		if e.TextCode == code {
			return true
		}
		err = e.Source
	}
	return false
}

func primaryStoreError(err error, entity string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "primary store lookup failed").
		WithTextCode(TextCodePrimaryStore).
		WithMetadata(map[string]any{"entity": entity})
}

func serializationError(err error, key string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "cache payload codec failed").
		WithTextCode(TextCodeSerialization).
		WithMetadata(map[string]any{"key": key})
}
