package listing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/filter"
	"github.com/goliatone/go-tenantquery/paging"
	"github.com/goliatone/go-tenantquery/tenancy"
	"golang.org/x/sync/errgroup"
)

const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSortBy = "sortBy"
	ParamOrder  = "order"
)

var ErrInvalidConfig = errors.New("listing: invalid config")

// FormatFunc post processes a fetched row, for example to strip secrets.
type FormatFunc[T any] func(ctx context.Context, item T) (T, error)

// Config describes how one entity collection is listed.
type Config[T any] struct {
	Entity       string
	Store        core.EntityReader[T]
	Enforcer     *tenancy.Enforcer
	TenantPolicy tenancy.Policy
	FilterSchema filter.Schema
	// BuildPredicate defaults to filter.DefaultPredicate(FilterSchema).
	BuildPredicate filter.PredicateBuilder
	Sort           paging.SortRules
	Pagination     paging.Defaults
	Includes       []string
	Format         FormatFunc[T]
}

func (c Config[T]) validate() error {
	if strings.TrimSpace(c.Entity) == "" {
		return fmt.Errorf("%w: entity name is required", ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: store is required for %s", ErrInvalidConfig, c.Entity)
	}
	if c.Enforcer == nil {
		return fmt.Errorf("%w: tenancy enforcer is required for %s", ErrInvalidConfig, c.Entity)
	}
	if err := c.FilterSchema.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, c.Entity, err)
	}
	if err := c.Sort.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, c.Entity, err)
	}
	return nil
}

type Option func(*options)

type options struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	normalizer     *core.ErrorNormalizer
	retry          *core.RetryOptions
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) { o.loggerProvider = provider }
}

func WithNormalizer(normalizer *core.ErrorNormalizer) Option {
	return func(o *options) { o.normalizer = normalizer }
}

// WithRetry retries the page and count reads independently. Both are
// idempotent so no idempotency key is needed.
func WithRetry(retry core.RetryOptions) Option {
	return func(o *options) {
		r := retry
		o.retry = &r
	}
}

type Lister[T any] struct {
	cfg        Config[T]
	build      filter.PredicateBuilder
	normalizer *core.ErrorNormalizer
	retry      *core.RetryOptions
	logger     core.Logger
}

// New validates cfg once. A malformed config is a programmer error and is
// reported as ErrInvalidConfig instead of a normalized error.
func New[T any](cfg Config[T], opts ...Option) (*Lister[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if o.normalizer == nil {
		o.normalizer = core.NewErrorNormalizer()
	}
	if o.retry != nil && o.retry.Normalizer == nil {
		o.retry.Normalizer = o.normalizer
	}
	build := cfg.BuildPredicate
	if build == nil {
		build = filter.DefaultPredicate(cfg.FilterSchema)
	}
	return &Lister[T]{
		cfg:        cfg,
		build:      build,
		normalizer: o.normalizer,
		retry:      o.retry,
		logger:     core.ResolveLogger("tenantquery.listing", o.loggerProvider, o.logger),
	}, nil
}

// ListEntities builds a one shot lister for cfg and runs it.
func ListEntities[T any](ctx context.Context, cfg Config[T], auth core.AuthContext, raw url.Values, opts ...Option) (core.Page[T], error) {
	lister, err := New(cfg, opts...)
	if err != nil {
		return core.Page[T]{}, err
	}
	return lister.List(ctx, auth, raw)
}

func (l *Lister[T]) Entity() string { return l.cfg.Entity }

// Options resolves the query options for raw without touching the store.
func (l *Lister[T]) Options(auth core.AuthContext, raw url.Values) (core.QueryOptions, core.PaginationSpec, error) {
	dto := filter.Convert(raw, l.cfg.FilterSchema)
	base, err := l.cfg.Enforcer.BasePredicate(auth, l.cfg.TenantPolicy)
	if err != nil {
		return core.QueryOptions{}, core.PaginationSpec{}, err
	}
	predicate := filter.ToPredicate(dto, base, l.build)
	spec := paging.ParsePagination(raw.Get(ParamPage), raw.Get(ParamLimit), l.cfg.Pagination)
	sort := paging.ParseSort(raw.Get(ParamSortBy), raw.Get(ParamOrder), l.cfg.Sort)
	return core.QueryOptions{
		Predicate: predicate,
		Skip:      spec.Skip,
		Take:      spec.Limit,
		OrderBy:   []core.SortSpec{sort},
		Includes:  append([]string(nil), l.cfg.Includes...),
	}, spec, nil
}

// List runs the page and count reads concurrently. They share no
// transaction, so total may drift from the page under concurrent writes.
func (l *Lister[T]) List(ctx context.Context, auth core.AuthContext, raw url.Values) (core.Page[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, spec, err := l.Options(auth, raw)
	if err != nil {
		return core.Page[T]{}, l.fail(auth, "listing rejected", err)
	}

	var (
		items []T
		total int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		found, err := read(groupCtx, l.retry, func(ctx context.Context) ([]T, error) {
			return l.cfg.Store.Find(ctx, opts)
		})
		items = found
		return err
	})
	group.Go(func() error {
		counted, err := read(groupCtx, l.retry, func(ctx context.Context) (int, error) {
			return l.cfg.Store.Count(ctx, opts.Predicate)
		})
		total = counted
		return err
	})
	if err := group.Wait(); err != nil {
		return core.Page[T]{}, l.fail(auth, "listing read failed", err)
	}

	if l.cfg.Format != nil {
		for i := range items {
			formatted, err := l.cfg.Format(ctx, items[i])
			if err != nil {
				return core.Page[T]{}, l.fail(auth, "listing format failed", err)
			}
			items[i] = formatted
		}
	}
	if items == nil {
		items = []T{}
	}
	return core.Page[T]{Items: items, Pagination: paging.NewMeta(spec, total)}, nil
}

func read[R any](ctx context.Context, retry *core.RetryOptions, op func(context.Context) (R, error)) (R, error) {
	if retry == nil {
		return op(ctx)
	}
	return core.Retry(ctx, op, *retry)
}

func (l *Lister[T]) fail(auth core.AuthContext, message string, err error) error {
	appErr := l.normalizer.Classify(err)
	fields := core.AuthFields(auth)
	fields["entity"] = l.cfg.Entity
	fields["kind"] = string(appErr.Kind)
	fields["code"] = appErr.Code
	if appErr.Attempts > 0 {
		fields["attempts"] = appErr.Attempts
	}
	if len(appErr.Context) > 0 {
		fields["context"] = appErr.Context
	}
	level := "warn"
	if appErr.Status >= 500 {
		level = "error"
	}
	core.LogFields(l.logger, level, message, fields)
	return appErr
}
