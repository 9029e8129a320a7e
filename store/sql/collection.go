package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tenantquery/audit"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const selectParent = "?TableAlias"

type CollectionOption func(*collectionOptions)

type collectionOptions struct {
	softDeleteColumn string
	normalizer       *core.ErrorNormalizer
}

func WithSoftDeleteColumn(column string) CollectionOption {
	return func(o *collectionOptions) {
		if column = strings.TrimSpace(column); column != "" {
			o.softDeleteColumn = column
		}
	}
}

func WithNormalizer(normalizer *core.ErrorNormalizer) CollectionOption {
	return func(o *collectionOptions) {
		if normalizer != nil {
			o.normalizer = normalizer
		}
	}
}

// Collection reads and mutates one entity table. T is the pointer model type.
// Every error it returns is normalized.
type Collection[T any] struct {
	db               *bun.DB
	repo             repository.Repository[T]
	handlers         repository.ModelHandlers[T]
	softDeleteColumn string
	classify         core.ClassifyFunc
}

func NewCollection[T any](db *bun.DB, handlers repository.ModelHandlers[T], opts ...CollectionOption) (*Collection[T], error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if handlers.NewRecord == nil || handlers.GetIdentifier == nil || handlers.GetIdentifierValue == nil {
		return nil, fmt.Errorf("sqlstore: collection handlers are incomplete")
	}
	o := collectionOptions{softDeleteColumn: audit.ColumnIsDeleted}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if o.normalizer == nil {
		o.normalizer = NewNormalizer()
	}

	repo := repository.NewRepository[T](db.WithQueryHook(driverErrorHook{}), handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid collection repository wiring: %w", err)
		}
	}
	return &Collection[T]{
		db:               db,
		repo:             repo,
		handlers:         handlers,
		softDeleteColumn: o.softDeleteColumn,
		classify:         o.normalizer.Mapper(core.FamilyPostgres, core.FamilySQLite, core.FamilyMySQL),
	}, nil
}

func (c *Collection[T]) Find(ctx context.Context, opts core.QueryOptions) ([]T, error) {
	var items []T
	q := c.db.NewSelect().Model(&items)
	q, err := applyPredicate(q, opts.Predicate)
	if err != nil {
		return nil, err
	}
	for _, order := range opts.OrderBy {
		q = q.OrderExpr(selectParent+".? "+orderKeyword(order.Direction), bun.Ident(order.Field))
	}
	for _, relation := range opts.Includes {
		q = q.Relation(relation)
	}
	if opts.Take > 0 {
		q = q.Limit(opts.Take)
	}
	if opts.Skip > 0 {
		q = q.Offset(opts.Skip)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, c.classify(err)
	}
	return items, nil
}

func (c *Collection[T]) Count(ctx context.Context, predicate core.Predicate) (int, error) {
	q := c.db.NewSelect().Model(c.handlers.NewRecord())
	q, err := applyPredicate(q, predicate)
	if err != nil {
		return 0, err
	}
	total, err := q.Count(ctx)
	if err != nil {
		return 0, c.classify(err)
	}
	return total, nil
}

// Create inserts record, assigning a uuid when the identifier is empty.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if c.handlers.GetIdentifierValue(record) == "" && c.handlers.SetID != nil {
		c.handlers.SetID(record, uuid.New())
	}
	capture := &driverErrorCapture{}
	created, err := c.repo.Create(withDriverErrorCapture(ctx, capture), record)
	if err != nil {
		return zero, c.classifyWrite(err, capture)
	}
	return created, nil
}

func (c *Collection[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	record, err := c.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return zero, c.classify(err)
	}
	return record, nil
}

func (c *Collection[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	id := c.handlers.GetIdentifierValue(record)
	if id == "" {
		return zero, core.NewError(core.KindValidation, core.CodeValidationFailed, "").
			WithDetail(c.handlers.GetIdentifier(), "is required")
	}
	capture := &driverErrorCapture{}
	updated, err := c.repo.Update(withDriverErrorCapture(ctx, capture), record, repository.UpdateByID(id))
	if err != nil {
		return zero, c.classifyWrite(err, capture)
	}
	return updated, nil
}

// SoftDelete marks the row deleted when it matches scope and is not deleted
// yet. A row outside scope is reported as not found.
func (c *Collection[T]) SoftDelete(ctx context.Context, id string, scope core.Predicate, fragment audit.Fragment) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewError(core.KindValidation, core.CodeValidationFailed, "").
			WithDetail(c.handlers.GetIdentifier(), "is required")
	}
	if !fragment.IsSoftDelete() {
		return fmt.Errorf("sqlstore: soft delete needs a soft delete audit fragment")
	}
	where, args, err := CompilePredicate(scope, "")
	if err != nil {
		return err
	}

	q := c.db.NewUpdate().
		Model(c.handlers.NewRecord()).
		Where("? = ?", bun.Ident(c.handlers.GetIdentifier()), id).
		Where("? = ?", bun.Ident(c.softDeleteColumn), false)
	if where != "" {
		q = q.Where(where, args...)
	}
	values := fragment.Values()
	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	for _, column := range columns {
		q = q.Set("? = ?", bun.Ident(column), values[column])
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return c.classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return c.classify(err)
	}
	if affected == 0 {
		return core.NewError(core.KindNotFound, core.CodeNotFound, "").
			WithContext(map[string]any{"id": id})
	}
	return nil
}

// classifyWrite prefers the raw driver error. The repository maps it to a
// retryable error that drops driver details such as the violated columns.
func (c *Collection[T]) classifyWrite(err error, capture *driverErrorCapture) error {
	if driverErr := capture.Err(); driverErr != nil {
		return c.classify(driverErr)
	}
	return c.classify(err)
}

type driverErrorKey struct{}

type driverErrorCapture struct {
	mu  sync.Mutex
	err error
}

func (d *driverErrorCapture) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func withDriverErrorCapture(ctx context.Context, capture *driverErrorCapture) context.Context {
	return context.WithValue(ctx, driverErrorKey{}, capture)
}

// driverErrorHook records the last failing query error in the capture
// carried by the query context.
type driverErrorHook struct{}

func (driverErrorHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (driverErrorHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event == nil || event.Err == nil {
		return
	}
	capture, ok := ctx.Value(driverErrorKey{}).(*driverErrorCapture)
	if !ok || capture == nil {
		return
	}
	capture.mu.Lock()
	capture.err = event.Err
	capture.mu.Unlock()
}

func applyPredicate(q *bun.SelectQuery, predicate core.Predicate) (*bun.SelectQuery, error) {
	where, args, err := CompilePredicate(predicate, selectParent)
	if err != nil {
		return nil, err
	}
	if where == "" {
		return q, nil
	}
	return q.Where(where, args...), nil
}

func orderKeyword(direction core.SortDirection) string {
	if direction == core.SortAsc {
		return "ASC"
	}
	return "DESC"
}
