package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-guarded-cache/cache"
	"github.com/goliatone/go-guarded-cache/primarystore"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// Option customizes a CachedRepository.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for invalidation failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// CachedRepository decorates a base repository so GetByID is served by a
// guarded cache. Writes that touch a record invalidate its cache entry; every
// other method is delegated to the base repository unchanged.
type CachedRepository[T any] struct {
	repository.Repository[T]

	guard  cache.Querier[string, T]
	served *sync.Map // ids read through the cache, for criteria based deletes
	logger *zap.Logger
}

// New wraps base. The guard is usually a *cache.Service built with Loader(base),
// optionally behind a cache.LocalTier.
func New[T any](base repository.Repository[T], guard cache.Querier[string, T], opts ...Option) *CachedRepository[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &CachedRepository[T]{
		Repository: base,
		guard:      guard,
		served:     &sync.Map{},
		logger:     o.logger.Named("repositorycache"),
	}
}

// Loader returns the primary store lookup for base, mapping the repository's
// "no rows" outcome to cache.ErrNotFound.
func Loader[T any](base repository.Repository[T]) cache.Loader[string, T] {
	return primarystore.NotFoundAware[string, T](func(ctx context.Context, id string) (T, error) {
		return base.GetByID(ctx, id)
	})
}

// GetByID serves the record through the guarded cache. Calls with criteria
// bypass the cache since criteria can change the result.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.Repository.GetByID(ctx, id, criteria...)
	}
	if id == "" {
		var zero T
		return zero, cache.ErrMissingID
	}

	c.served.Store(id, struct{}{})
	return c.guard.Query(ctx, id)
}

// Invalidate drops the cache entry for id.
func (c *CachedRepository[T]) Invalidate(ctx context.Context, id string) error {
	c.served.Delete(id)
	return c.guard.Invalidate(ctx, id)
}

// Create creates a record and clears any null sentinel cached for its id.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.Repository.Create(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "Create", result)
}

// CreateTx creates a record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "CreateTx", result)
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.Repository.CreateMany(ctx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "CreateMany", result...)
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.Repository.CreateManyTx(ctx, tx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "CreateManyTx", result...)
}

// GetOrCreate may insert, so it clears a cached null sentinel like Create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.Repository.GetOrCreate(ctx, record)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "GetOrCreate", result)
}

// GetOrCreateTx is GetOrCreate within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.Repository.GetOrCreateTx(ctx, tx, record)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "GetOrCreateTx", result)
}

// Update writes the record, then invalidates its cache entry.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.Update(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "Update", result)
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.UpdateTx(ctx, tx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "UpdateTx", result)
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpdateMany(ctx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "UpdateMany", result...)
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpdateManyTx(ctx, tx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "UpdateManyTx", result...)
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.Upsert(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "Upsert", result)
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.UpsertTx(ctx, tx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "UpsertTx", result)
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpsertMany(ctx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "UpsertMany", result...)
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpsertManyTx(ctx, tx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.invalidateRecords(ctx, "UpsertManyTx", result...)
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	if err := c.Repository.Delete(ctx, record); err != nil {
		return err
	}
	return c.invalidateRecords(ctx, "Delete", record)
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	if err := c.Repository.DeleteTx(ctx, tx, record); err != nil {
		return err
	}
	return c.invalidateRecords(ctx, "DeleteTx", record)
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	if err := c.Repository.ForceDelete(ctx, record); err != nil {
		return err
	}
	return c.invalidateRecords(ctx, "ForceDelete", record)
}

// ForceDeleteTx force deletes a record within a transaction
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	if err := c.Repository.ForceDeleteTx(ctx, tx, record); err != nil {
		return err
	}
	return c.invalidateRecords(ctx, "ForceDeleteTx", record)
}

// DeleteMany deletes by criteria. The affected ids are unknown, so every id
// this process has served is invalidated.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := c.Repository.DeleteMany(ctx, criteria...); err != nil {
		return err
	}
	return c.invalidateServed(ctx, "DeleteMany")
}

// DeleteManyTx deletes by criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	if err := c.Repository.DeleteManyTx(ctx, tx, criteria...); err != nil {
		return err
	}
	return c.invalidateServed(ctx, "DeleteManyTx")
}

// DeleteWhere deletes by criteria, see DeleteMany.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := c.Repository.DeleteWhere(ctx, criteria...); err != nil {
		return err
	}
	return c.invalidateServed(ctx, "DeleteWhere")
}

// DeleteWhereTx deletes by criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	if err := c.Repository.DeleteWhereTx(ctx, tx, criteria...); err != nil {
		return err
	}
	return c.invalidateServed(ctx, "DeleteWhereTx")
}

// invalidateRecords invalidates the cache entry of every record with an
// extractable id. All records are attempted; failures are joined.
func (c *CachedRepository[T]) invalidateRecords(ctx context.Context, op string, records ...T) error {
	var errs []error
	for _, record := range records {
		id, ok := extractID(record)
		if !ok {
			c.logger.Debug("record has no id, skipping invalidation", zap.String("operation", op))
			continue
		}
		if err := c.Invalidate(ctx, id); err != nil {
			c.logger.Error("cache invalidation failed",
				zap.String("operation", op),
				zap.String("id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CachedRepository[T]) invalidateServed(ctx context.Context, op string) error {
	var ids []string
	c.served.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})

	var errs []error
	for _, id := range ids {
		if err := c.Invalidate(ctx, id); err != nil {
			c.logger.Error("cache invalidation failed",
				zap.String("operation", op),
				zap.String("id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// extractID finds the record id: a field named ID/Id, or the first field
// tagged as a bun primary key. Zero ids are treated as missing.
func extractID(record any) (string, bool) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}

	field := v.FieldByName("ID")
	if !field.IsValid() {
		field = v.FieldByName("Id")
	}
	if !field.IsValid() {
		field = pkField(v)
	}
	if !field.IsValid() || !field.CanInterface() || field.IsZero() {
		return "", false
	}

	return fmt.Sprint(field.Interface()), true
}

func pkField(v reflect.Value) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("bun")
		for _, opt := range strings.Split(tag, ",")[1:] {
			if opt == "pk" {
				return v.Field(i)
			}
		}
	}
	return reflect.Value{}
}
